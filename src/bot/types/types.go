package types

import "time"

// ProposalStatus is the lifecycle state of a grant proposal.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalStatusApproved || s == ProposalStatusRejected
}

// Proposal is one grant proposal awaiting (or past) lazy-consensus
// resolution. The primary key is the snowflake of the command message
// that created it, which makes ids unique for the bot's lifetime.
type Proposal struct {
	ID          string         `gorm:"primaryKey;size:64"`
	ChannelID   string         `gorm:"size:64;not null"`
	Proposer    string         `gorm:"size:64;not null;index"`
	Recipient   string         `gorm:"size:64;not null"`
	Amount      float64        `gorm:"not null"`
	Description string         `gorm:"type:text"`
	Status      ProposalStatus `gorm:"size:16;not null;index;default:'pending'"`
	VetoedBy    string         `gorm:"size:64"`
	SubmittedAt time.Time      `gorm:"not null"`
	ExpiresAt   time.Time      `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Messages []ProposalMessage `gorm:"foreignKey:ProposalID"`
}

// ProposalMessage maps a Discord message id to its proposal. Both the
// original command message and the bot's confirmation message are valid
// veto targets, so both get a row here.
type ProposalMessage struct {
	MessageID  string `gorm:"primaryKey;size:64"`
	ProposalID string `gorm:"size:64;index;not null"`
	Kind       string `gorm:"size:16;not null"` // command or confirmation
	CreatedAt  time.Time
}

const (
	MessageKindCommand      = "command"
	MessageKindConfirmation = "confirmation"
)

// Settings
type Setting struct {
	ID     uint8  `gorm:"primaryKey"`
	Name   string `gorm:"size:32;not null"`
	Value  string `gorm:"size:256;not null"`
	Active uint8  `gorm:"not null"`
}

// Free funding balance per author, seeded at the seasonal limit.
type FreeFundingBalance struct {
	Author    string  `gorm:"primaryKey;size:64"`
	Balance   float64 `gorm:"not null"`
	UpdatedAt time.Time
}

// Free funding history, kept as an audit record.
type FreeFundingTransaction struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Author      string `gorm:"size:64;index;not null"`
	Recipients  string `gorm:"size:512;not null"`
	Total       float64
	Description string `gorm:"type:text"`
	SubmittedAt time.Time
}
