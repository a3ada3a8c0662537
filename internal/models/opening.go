package models

import (
	"math/big"
	"time"
)

// LedgerEntry is written once per opening and never mutated.
type LedgerEntry struct {
	OpeningID  string           `json:"openingId"`
	ServerSeed string           `json:"serverSeed"`
	Commitment string           `json:"commitment"`
	Source     RandomnessSource `json:"source"`

	CaseTypeID    string  `json:"caseTypeId"`
	ClientSeed    string  `json:"clientSeed"`
	TxHash        string  `json:"txHash"`
	RewardUsd     float64 `json:"rewardUsd"`
	RewardCbBtc   float64 `json:"rewardCbBtc"`
	CbBtcUsdPrice float64 `json:"cbBtcUsdPrice"`
	PriceSource   string  `json:"priceSource,omitempty"`
	RequestID     string  `json:"requestId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// OnchainOpening mirrors the getOpening tuple of the case sale contract.
type OnchainOpening struct {
	OpeningID      *big.Int
	Buyer          string
	CaseTypeID     *big.Int
	RewardAmount   *big.Int
	ReservedAmount *big.Int
	BtcUsdPrice    *big.Int
	Rewarded       bool
	Claimed        bool
	RequestID      *big.Int
}

type PriceQuote struct {
	CbBtcUsd float64 `json:"cbBtcUsd"`
	Source   string  `json:"source"`
	Note     string  `json:"note,omitempty"`
	Trusted  bool    `json:"-"`
}
