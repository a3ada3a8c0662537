package models

type RandomnessSource string

const (
	SourceServerMVP      RandomnessSource = "server-mvp"
	SourceOnchainEntropy RandomnessSource = "onchain-entropy"
	SourceChainlinkVRF   RandomnessSource = "chainlink-vrf"
)

// OnchainEntropyCaveat is attached to every onchain-entropy quote so clients can show it.
const OnchainEntropyCaveat = "Randomness is derived from block data; block producers have limited influence over it. VRF is stronger."

type RewardQuoteRequest struct {
	CaseTypeID CaseTypeID `json:"caseTypeId"`
	TxHash     string     `json:"txHash"`
	ClientSeed string     `json:"clientSeed"`
}

type RandomnessMetadata struct {
	Source              RandomnessSource `json:"source"`
	Commitment          string           `json:"commitment"`
	ServerSeed          string           `json:"serverSeed"`
	ClientSeed          string           `json:"clientSeed"`
	RevealedImmediately bool             `json:"revealedImmediately"`

	FulfilledOnchain *bool  `json:"fulfilledOnchain,omitempty"`
	RequestID        string `json:"requestId,omitempty"`
	Caveat           string `json:"caveat,omitempty"`
}

type RewardQuote struct {
	OpeningID     string             `json:"openingId"`
	RewardUsd     float64            `json:"rewardUsd"`
	RewardCbBtc   float64            `json:"rewardCbBtc"`
	CbBtcUsdPrice float64            `json:"cbBtcUsdPrice"`
	Rewarded      bool               `json:"rewarded"`
	Randomness    RandomnessMetadata `json:"randomness"`
}
