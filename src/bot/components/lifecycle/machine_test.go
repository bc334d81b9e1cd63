package lifecycle

import (
	"testing"
	"time"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
	"github.com/stretchr/testify/require"
)

func pendingProposal() *types.Proposal {
	now := time.Now()
	return &types.Proposal{
		ID:          "100",
		ChannelID:   "chan",
		Proposer:    "alice",
		Recipient:   "bob",
		Amount:      100,
		Status:      types.ProposalStatusPending,
		SubmittedAt: now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestValidateSubmission(t *testing.T) {
	cases := []struct {
		name      string
		proposer  string
		recipient string
		amount    float64
		wantErr   bool
	}{
		{"valid", "alice", "bob", 100, false},
		{"fractional amount", "alice", "bob", 0.5, false},
		{"zero amount", "alice", "bob", 0, true},
		{"negative amount", "alice", "bob", -5, true},
		{"self grant", "alice", "alice", 100, true},
		{"missing recipient", "alice", "", 100, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSubmission(tc.proposer, tc.recipient, tc.amount)
			if tc.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestOnVeto_AuthorizedOnPending_Rejects(t *testing.T) {
	outcome, ok := OnVeto(pendingProposal(), true, true)
	require.True(t, ok)
	require.Equal(t, types.ProposalStatusRejected, outcome.Status)
	require.Equal(t,
		[]Effect{EffectPersistRejected, EffectCancelTimer, EffectPostRejection},
		outcome.Effects)
}

func TestOnVeto_PersistComesFirst(t *testing.T) {
	// A failed persist must suppress the outward notice, so the effect
	// ordering is part of the contract.
	outcome, ok := OnVeto(pendingProposal(), true, true)
	require.True(t, ok)
	require.Equal(t, EffectPersistRejected, outcome.Effects[0])
}

func TestOnVeto_FailedPreconditions_NoOutcome(t *testing.T) {
	approved := pendingProposal()
	approved.Status = types.ProposalStatusApproved

	rejected := pendingProposal()
	rejected.Status = types.ProposalStatusRejected

	cases := []struct {
		name         string
		proposal     *types.Proposal
		knownMessage bool
		authorized   bool
	}{
		{"unauthorized actor", pendingProposal(), true, false},
		{"unknown message", pendingProposal(), false, true},
		{"already approved", approved, true, true},
		{"already rejected", rejected, true, true},
		{"nil proposal", nil, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := OnVeto(tc.proposal, tc.knownMessage, tc.authorized)
			require.False(t, ok)
		})
	}
}

func TestOnExpiry_Pending_Approves(t *testing.T) {
	outcome, ok := OnExpiry(pendingProposal())
	require.True(t, ok)
	require.Equal(t, types.ProposalStatusApproved, outcome.Status)
	require.Equal(t, []Effect{EffectPersistApproved, EffectPostApproval}, outcome.Effects)
}

func TestOnExpiry_Terminal_NoOutcome(t *testing.T) {
	for _, status := range []types.ProposalStatus{
		types.ProposalStatusApproved,
		types.ProposalStatusRejected,
	} {
		p := pendingProposal()
		p.Status = status
		_, ok := OnExpiry(p)
		require.False(t, ok)
	}

	_, ok := OnExpiry(nil)
	require.False(t, ok)
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, types.ProposalStatusPending.Terminal())
	require.True(t, types.ProposalStatusApproved.Terminal())
	require.True(t, types.ProposalStatusRejected.Terminal())
}
