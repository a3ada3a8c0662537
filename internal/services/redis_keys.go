package services

import "time"

const (
	KeyOpening        = "opening:%s"
	KeyOpeningsRecent = "openings:recent"
	KeyRateLimit      = "ratelimit:%s:%s"

	TTLOpening = 30 * 24 * time.Hour // 30 days, overridden by LEDGER_RETENTION

	ActionReward           = "reward"
	DefaultRateLimitReward = 30 // Max 30 reward quotes per minute per client
)
