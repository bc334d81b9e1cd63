package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no proposal matches the given id or
	// message id.
	ErrNotFound = errors.New("proposal not found")
	// ErrAlreadyResolved is returned when a conditional mark loses the
	// race: the proposal exists but is no longer pending. Callers treat
	// it as a successful no-op.
	ErrAlreadyResolved = errors.New("proposal already resolved")
)

// Store is the durable proposal table, the sole source of truth across
// restarts. All state-changing calls are committed before they return.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create persists a new pending proposal together with its command
// message ref in one transaction.
func (s *Store) Create(p *types.Proposal) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("create proposal: %w", err)
		}
		ref := types.ProposalMessage{
			MessageID:  p.ID,
			ProposalID: p.ID,
			Kind:       types.MessageKindCommand,
			CreatedAt:  time.Now(),
		}
		if err := tx.Create(&ref).Error; err != nil {
			return fmt.Errorf("create message ref: %w", err)
		}
		return nil
	})
}

// AddMessageRef records an additional veto-target message for a proposal,
// typically the bot's confirmation message.
func (s *Store) AddMessageRef(proposalID, messageID, kind string) error {
	ref := types.ProposalMessage{
		MessageID:  messageID,
		ProposalID: proposalID,
		Kind:       kind,
		CreatedAt:  time.Now(),
	}
	return s.db.Create(&ref).Error
}

func (s *Store) Get(id string) (*types.Proposal, error) {
	var p types.Proposal
	if err := s.db.Preload("Messages").First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindByMessage resolves a message id (command or confirmation) to its
// proposal via the message-ref reverse index.
func (s *Store) FindByMessage(messageID string) (*types.Proposal, error) {
	var ref types.ProposalMessage
	if err := s.db.First(&ref, "message_id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Get(ref.ProposalID)
}

// ListPending returns every pending proposal, including ones whose
// deadline already passed while the process was down.
func (s *Store) ListPending() ([]types.Proposal, error) {
	var pending []types.Proposal
	err := s.db.Preload("Messages").
		Where("status = ?", types.ProposalStatusPending).
		Order("expires_at ASC").
		Find(&pending).Error
	return pending, err
}

// MarkApproved transitions a pending proposal to approved. The update
// is conditional on the current status, which is what decides the race
// between a veto and a firing timer.
func (s *Store) MarkApproved(id string) error {
	return s.markResolved(id, map[string]interface{}{
		"status": types.ProposalStatusApproved,
	})
}

// MarkRejected transitions a pending proposal to rejected, recording
// the objector. Conditional in the same way as MarkApproved.
func (s *Store) MarkRejected(id, vetoedBy string) error {
	return s.markResolved(id, map[string]interface{}{
		"status":    types.ProposalStatusRejected,
		"vetoed_by": vetoedBy,
	})
}

func (s *Store) markResolved(id string, updates map[string]interface{}) error {
	res := s.db.Model(&types.Proposal{}).
		Where("id = ? AND status = ?", id, types.ProposalStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.Model(&types.Proposal{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrAlreadyResolved
	}
	return nil
}
