// Package chain reads case openings from the CaseSale contract.
package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/casevault/reward-service/internal/errs"
	"github.com/casevault/reward-service/internal/models"
)

// Backend is the part of ethclient.Client the reader needs.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type CaseSaleClient struct {
	backend Backend
	address common.Address
	abi     abi.ABI

	mu            sync.Mutex
	priceDecimals *uint8
}

// openingTuple matches the getOpening output; field names follow the ABI component names.
type openingTuple struct {
	Buyer          common.Address
	CaseTypeId     *big.Int //nolint:revive
	RewardAmount   *big.Int
	ReservedAmount *big.Int
	BtcUsdPrice    *big.Int
	Rewarded       bool
	Claimed        bool
	RequestId      *big.Int //nolint:revive
}

func Dial(ctx context.Context, rpcURL, address string) (*CaseSaleClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "dial chain rpc"), errs.ErrChainUnavailable)
	}
	return NewCaseSaleClient(client, address)
}

func NewCaseSaleClient(backend Backend, address string) (*CaseSaleClient, error) {
	if !common.IsHexAddress(address) {
		return nil, errs.Newf("invalid case sale address: %q", address)
	}

	parsed, err := abi.JSON(strings.NewReader(caseSaleABI))
	if err != nil {
		return nil, errs.Wrap(err, "parse case sale abi")
	}

	return &CaseSaleClient{
		backend: backend,
		address: common.HexToAddress(address),
		abi:     parsed,
	}, nil
}

// OpeningIDByTx finds the opening created by a purchase transaction through its CasePurchased log.
func (c *CaseSaleClient) OpeningIDByTx(ctx context.Context, txHash string) (*big.Int, error) {
	if !isTxHash(txHash) {
		return nil, errs.Mark(errs.Newf("malformed transaction hash %q", txHash), errs.ErrInvalidRequest)
	}

	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, errs.Mark(errs.Newf("purchase transaction %s not found", txHash), errs.ErrOpeningNotFound)
		}
		return nil, errs.Mark(errs.Wrap(err, "fetch purchase receipt"), errs.ErrChainUnavailable)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, errs.Mark(errs.Newf("purchase transaction %s reverted", txHash), errs.ErrInvalidRequest)
	}

	purchased := c.abi.Events["CasePurchased"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != c.address || len(lg.Topics) != 4 || lg.Topics[0] != purchased {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[3].Bytes()), nil
	}

	return nil, errs.Mark(errs.Newf("transaction %s did not purchase a case", txHash), errs.ErrOpeningNotFound)
}

func (c *CaseSaleClient) GetOpening(ctx context.Context, openingID *big.Int) (*models.OnchainOpening, error) {
	out, err := c.call(ctx, "getOpening", openingID)
	if err != nil {
		return nil, err
	}

	tuple := abi.ConvertType(out[0], new(openingTuple)).(*openingTuple)
	if tuple.Buyer == (common.Address{}) {
		return nil, errs.Mark(errs.Newf("opening %s not found onchain", openingID), errs.ErrOpeningNotFound)
	}

	return &models.OnchainOpening{
		OpeningID:      new(big.Int).Set(openingID),
		Buyer:          tuple.Buyer.Hex(),
		CaseTypeID:     tuple.CaseTypeId,
		RewardAmount:   tuple.RewardAmount,
		ReservedAmount: tuple.ReservedAmount,
		BtcUsdPrice:    tuple.BtcUsdPrice,
		Rewarded:       tuple.Rewarded,
		Claimed:        tuple.Claimed,
		RequestID:      tuple.RequestId,
	}, nil
}

// PriceDecimals is immutable onchain, so the first answer is cached.
func (c *CaseSaleClient) PriceDecimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.priceDecimals != nil {
		return *c.priceDecimals, nil
	}

	out, err := c.call(ctx, "btcUsdDecimals")
	if err != nil {
		return 0, err
	}

	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, errs.Newf("unexpected btcUsdDecimals output %T", out[0])
	}
	c.priceDecimals = &decimals
	return decimals, nil
}

func (c *CaseSaleClient) AvailableCases(ctx context.Context, caseTypeID int64) (*big.Int, error) {
	out, err := c.call(ctx, "availableCases", big.NewInt(caseTypeID))
	if err != nil {
		return nil, err
	}

	available, ok := out[0].(*big.Int)
	if !ok {
		return nil, errs.Newf("unexpected availableCases output %T", out[0])
	}
	return available, nil
}

func (c *CaseSaleClient) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, errs.Wrapf(err, "pack %s", method)
	}

	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "call %s", method), errs.ErrChainUnavailable)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, errs.Wrapf(err, "unpack %s", method)
	}
	if len(out) == 0 {
		return nil, errs.Newf("empty %s output", method)
	}
	return out, nil
}

func isTxHash(s string) bool {
	s = models.TrimHexPrefix(s)
	if len(s) != 2*common.HashLength {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
