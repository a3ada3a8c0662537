package services

import "github.com/casevault/reward-service/internal/models"

type Broadcaster interface {
	BroadcastOpening(caseTypeID string, quote *models.RewardQuote)
}
