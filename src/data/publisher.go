package data

import (
	"context"
	"log"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StreamPublisher mirrors proposal lifecycle events onto a Redis stream
// for external consumers. Publishing is best effort; the durable record
// lives in MySQL.
type StreamPublisher struct {
	rdb *redis.Client
}

func NewStreamPublisher(rdb *redis.Client) *StreamPublisher {
	return &StreamPublisher{rdb: rdb}
}

func (p *StreamPublisher) ProposalEvent(ctx context.Context, kind string, prop *types.Proposal) {
	err := PublishEvent(ctx, p.rdb, map[string]interface{}{
		"event":     uuid.NewString(),
		"kind":      kind,
		"proposal":  prop.ID,
		"proposer":  prop.Proposer,
		"recipient": prop.Recipient,
		"amount":    prop.Amount,
		"status":    string(prop.Status),
		"vetoed_by": prop.VetoedBy,
	})
	if err != nil {
		log.Printf("Failed to publish %s event for %s: %v", kind, prop.ID, err)
	}
}
