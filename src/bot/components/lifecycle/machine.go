package lifecycle

import (
	"fmt"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
)

// Effect is an externally visible action the dispatcher must apply, in
// order, after a successful transition.
type Effect int

const (
	EffectPersistRejected Effect = iota
	EffectPersistApproved
	EffectCancelTimer
	EffectPostRejection
	EffectPostApproval
)

// Outcome is the result of feeding one event into the state machine.
type Outcome struct {
	Status  types.ProposalStatus
	Effects []Effect
}

// ValidationError reports a submission that never becomes a proposal.
// It is surfaced to the submitting user.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid proposal: %s", e.Reason)
}

// ValidateSubmission checks a ProposalSubmitted event before any state
// is created.
func ValidateSubmission(proposer, recipient string, amount float64) error {
	if recipient == "" {
		return &ValidationError{Reason: "a recipient mention is required"}
	}
	if amount <= 0 {
		return &ValidationError{Reason: "amount must be positive"}
	}
	if recipient == proposer {
		return &ValidationError{Reason: "you cannot grant funds to yourself"}
	}
	return nil
}

// OnVeto decides a VetoReceived event. knownMessage is whether the
// reacted-to message belongs to the proposal's message refs and
// authorized is the injected privilege check. Failed preconditions
// yield no outcome; the reaction is ignored silently so privilege
// checks are not leaked.
func OnVeto(p *types.Proposal, knownMessage, authorized bool) (Outcome, bool) {
	if p == nil || !knownMessage || !authorized || p.Status != types.ProposalStatusPending {
		return Outcome{}, false
	}
	return Outcome{
		Status:  types.ProposalStatusRejected,
		Effects: []Effect{EffectPersistRejected, EffectCancelTimer, EffectPostRejection},
	}, true
}

// OnExpiry decides a TimerExpired event. The conditional persistence
// write still has the final word: an outcome here can be overturned by
// an AlreadyResolved report from the store.
func OnExpiry(p *types.Proposal) (Outcome, bool) {
	if p == nil || p.Status != types.ProposalStatusPending {
		return Outcome{}, false
	}
	return Outcome{
		Status:  types.ProposalStatusApproved,
		Effects: []Effect{EffectPersistApproved, EffectPostApproval},
	}, true
}
