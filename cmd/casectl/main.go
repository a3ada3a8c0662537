package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/logger"
	"github.com/casevault/reward-service/internal/services"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openLedger uses the same env configuration as the API server. A bolt ledger
// can only be opened while the server is stopped.
func openLedger() (services.OpeningLedger, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	ledger, err := services.NewLedger(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return ledger, cfg, nil
}

func runVerify(_ context.Context, cmd *cli.Command) error {
	valid, computed := services.VerifyCommitment(
		cmd.String("server-seed"),
		cmd.String("client-seed"),
		cmd.String("tx-hash"),
		cmd.String("commitment"),
	)

	if err := printJSON(map[string]any{"valid": valid, "computed": computed}); err != nil {
		return err
	}
	if !valid {
		return cli.Exit("commitment does not match", 1)
	}
	return nil
}

func runLookup(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return cli.Exit("usage: casectl lookup <opening-id>", 2)
	}

	ledger, _, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	entry, err := ledger.Lookup(ctx, id)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"opening":  entry,
		"verified": services.VerifyEntry(entry),
	})
}

func runRecent(ctx context.Context, cmd *cli.Command) error {
	ledger, _, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	entries, err := ledger.Recent(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	return printJSON(entries)
}

func runPrune(ctx context.Context, cmd *cli.Command) error {
	ledger, cfg, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	age := cmd.Duration("older-than")
	if age == 0 {
		age = cfg.Ledger.Retention
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	pruner := services.NewLedgerPruner(ledger, cfg.Ledger.Retention, cfg.Ledger.PruneSchedule, log)

	pruned, err := pruner.PruneOlderThan(ctx, age)
	if err != nil {
		return err
	}
	return printJSON(map[string]int{"pruned": pruned})
}

func runToken(_ context.Context, cmd *cli.Command) error {
	jwtService := services.NewJWTService(config.JWTConfig{
		Secret:   cmd.String("secret"),
		Duration: cmd.Duration("duration"),
	})
	if !jwtService.Enabled() {
		return cli.Exit("JWT_SECRET is required", 2)
	}

	token, err := jwtService.GenerateToken(cmd.String("subject"), cmd.String("role"))
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func runCases(_ context.Context, _ *cli.Command) error {
	catalog, err := services.NewCaseCatalog(services.DefaultCaseTypes())
	if err != nil {
		return err
	}

	type row struct {
		ID            int64  `json:"id"`
		Name          string `json:"name"`
		Price         string `json:"price"`
		Range         string `json:"range"`
		Odds          string `json:"odds"`
		ExpectedValue string `json:"expectedValue"`
		Live          bool   `json:"live"`
	}

	rows := make([]row, 0)
	for _, ct := range catalog.All() {
		rows = append(rows, row{
			ID:            ct.ID,
			Name:          ct.Name,
			Price:         ct.Price.StringFixed(2),
			Range:         ct.MinReward.StringFixed(2) + "-" + ct.MaxReward.StringFixed(2),
			Odds:          string(ct.Odds.Type),
			ExpectedValue: services.ExpectedReward(ct).StringFixed(4),
			Live:          ct.IsLive(),
		})
	}
	return printJSON(rows)
}

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "casectl",
		Usage: "operate and audit the case reward service",
		Commands: []*cli.Command{
			{
				Name:  "verify",
				Usage: "recompute an opening commitment from its revealed seeds",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server-seed", Required: true},
					&cli.StringFlag{Name: "client-seed", Required: true},
					&cli.StringFlag{Name: "tx-hash", Required: true},
					&cli.StringFlag{Name: "commitment", Required: true},
				},
				Action: runVerify,
			},
			{
				Name:      "lookup",
				Usage:     "print a ledger entry and whether its commitment verifies",
				ArgsUsage: "<opening-id>",
				Action:    runLookup,
			},
			{
				Name:  "recent",
				Usage: "list the most recent ledger entries",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: services.DefaultRecentLimit,
					},
				},
				Action: runRecent,
			},
			{
				Name:  "prune",
				Usage: "delete ledger entries older than a duration",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "defaults to LEDGER_RETENTION",
					},
				},
				Action: runPrune,
			},
			{
				Name:  "token",
				Usage: "mint a JWT for the admin endpoints",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "secret",
						Sources: cli.EnvVars("JWT_SECRET"),
					},
					&cli.StringFlag{
						Name:  "subject",
						Value: "operator",
					},
					&cli.StringFlag{
						Name:  "role",
						Value: services.RoleAdmin,
					},
					&cli.DurationFlag{
						Name:    "duration",
						Value:   time.Hour,
						Sources: cli.EnvVars("JWT_DURATION"),
					},
				},
				Action: runToken,
			},
			{
				Name:   "cases",
				Usage:  "print the case catalog with expected values",
				Action: runCases,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}
