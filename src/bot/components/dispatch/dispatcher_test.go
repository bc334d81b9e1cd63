package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/lifecycle"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/store"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	proposals map[string]*types.Proposal
	refs      map[string]string // message id -> proposal id
	failNext  error             // forced error for the next mutation
}

func newMemStore() *memStore {
	return &memStore{
		proposals: make(map[string]*types.Proposal),
		refs:      make(map[string]string),
	}
}

func (m *memStore) Create(p *types.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	cp := *p
	m.proposals[p.ID] = &cp
	m.refs[p.ID] = p.ID
	return nil
}

func (m *memStore) AddMessageRef(proposalID, messageID, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[messageID] = proposalID
	return nil
}

func (m *memStore) Get(id string) (*types.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) FindByMessage(messageID string) (*types.Proposal, error) {
	m.mu.Lock()
	id, ok := m.refs[messageID]
	m.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Get(id)
}

func (m *memStore) ListPending() ([]types.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Proposal
	for _, p := range m.proposals {
		if p.Status == types.ProposalStatusPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) MarkApproved(id string) error {
	return m.mark(id, types.ProposalStatusApproved, "")
}

func (m *memStore) MarkRejected(id, vetoedBy string) error {
	return m.mark(id, types.ProposalStatusRejected, vetoedBy)
}

func (m *memStore) mark(id string, status types.ProposalStatus, vetoedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	p, ok := m.proposals[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Status != types.ProposalStatusPending {
		return store.ErrAlreadyResolved
	}
	p.Status = status
	p.VetoedBy = vetoedBy
	return nil
}

type fakeTimers struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cancelled []string
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{scheduled: make(map[string]time.Time)}
}

func (f *fakeTimers) Schedule(id string, expiresAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scheduled[id]; !ok {
		f.scheduled[id] = expiresAt
	}
}

func (f *fakeTimers) Cancel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, id)
	f.cancelled = append(f.cancelled, id)
}

type fakeNotifier struct {
	mu            sync.Mutex
	confirmations []string
	approvals     []string
	rejections    []string
	nextMessageID string
}

func (f *fakeNotifier) PostConfirmation(p *types.Proposal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations = append(f.confirmations, p.ID)
	return f.nextMessageID, nil
}

func (f *fakeNotifier) PostApproval(p *types.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, p.ID)
	return nil
}

func (f *fakeNotifier) PostRejection(p *types.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejections = append(f.rejections, p.ID)
	return nil
}

type fakeAuth struct {
	allowed map[string]bool
}

func (f *fakeAuth) CanVeto(userID string) bool {
	return f.allowed[userID]
}

type fixture struct {
	store  *memStore
	timers *fakeTimers
	notify *fakeNotifier
	auth   *fakeAuth
	disp   *Dispatcher
}

func newFixture() *fixture {
	st := newMemStore()
	tm := newFakeTimers()
	nt := &fakeNotifier{nextMessageID: "confirm-1"}
	au := &fakeAuth{allowed: map[string]bool{"carol": true}}
	return &fixture{
		store:  st,
		timers: tm,
		notify: nt,
		auth:   au,
		disp:   New(st, tm, nt, au, nil),
	}
}

func submittedProposal(id string) *types.Proposal {
	now := time.Now()
	return &types.Proposal{
		ID:          id,
		ChannelID:   "chan",
		Proposer:    "alice",
		Recipient:   "bob",
		Amount:      100,
		Status:      types.ProposalStatusPending,
		SubmittedAt: now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestSubmit_PersistsSchedulesAndConfirms(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p := submittedProposal("100")
	f.disp.handleSubmit(ctx, p)

	stored, err := f.store.Get("100")
	require.NoError(t, err)
	require.Equal(t, types.ProposalStatusPending, stored.Status)

	require.Equal(t, p.ExpiresAt, f.timers.scheduled["100"])
	require.Equal(t, []string{"100"}, f.notify.confirmations)

	// The confirmation message became a veto target.
	byConfirm, err := f.store.FindByMessage("confirm-1")
	require.NoError(t, err)
	require.Equal(t, "100", byConfirm.ID)
}

func TestSubmit_StoreFailureSuppressesEffects(t *testing.T) {
	f := newFixture()
	f.store.failNext = context.DeadlineExceeded

	f.disp.handleSubmit(context.Background(), submittedProposal("100"))

	require.Empty(t, f.timers.scheduled)
	require.Empty(t, f.notify.confirmations)
	_, err := f.store.Get("100")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestVeto_AuthorizedRejects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.disp.handleSubmit(ctx, submittedProposal("100"))

	f.disp.handleVeto(ctx, "100", "carol")

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusRejected, stored.Status)
	require.Equal(t, "carol", stored.VetoedBy)
	require.Contains(t, f.timers.cancelled, "100")
	require.Equal(t, []string{"100"}, f.notify.rejections)
	require.Empty(t, f.notify.approvals)
}

func TestVeto_OnConfirmationMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.disp.handleSubmit(ctx, submittedProposal("100"))

	f.disp.handleVeto(ctx, "confirm-1", "carol")

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusRejected, stored.Status)
}

func TestVeto_UnauthorizedIsSilent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.disp.handleSubmit(ctx, submittedProposal("100"))

	f.disp.handleVeto(ctx, "100", "mallory")

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusPending, stored.Status)
	require.Empty(t, f.notify.rejections)
	require.Empty(t, f.timers.cancelled)
}

func TestVeto_UnknownMessageIsSilent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.disp.handleSubmit(ctx, submittedProposal("100"))

	f.disp.handleVeto(ctx, "unrelated-message", "carol")

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusPending, stored.Status)
	require.Empty(t, f.notify.rejections)
}

func TestExpire_ApprovesPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.disp.handleSubmit(ctx, submittedProposal("100"))

	f.disp.handleExpire(ctx, "100")

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusApproved, stored.Status)
	require.Equal(t, []string{"100"}, f.notify.approvals)
}

func TestExpire_AfterVetoIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.disp.handleSubmit(ctx, submittedProposal("100"))
	f.disp.handleVeto(ctx, "100", "carol")

	f.disp.handleExpire(ctx, "100")

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusRejected, stored.Status)
	require.Empty(t, f.notify.approvals)
}

func TestRace_ConditionalWriteDecides(t *testing.T) {
	// The expiry reads a still-pending proposal, then the conditional
	// write loses to a veto that landed in between. No approval notice
	// may be emitted.
	f := newFixture()
	ctx := context.Background()
	f.disp.handleSubmit(ctx, submittedProposal("100"))

	stale, err := f.store.Get("100")
	require.NoError(t, err)
	outcome, ok := lifecycle.OnExpiry(stale)
	require.True(t, ok)

	f.disp.handleVeto(ctx, "100", "carol")

	// Apply the stale expiry outcome. The conditional write refuses it.
	f.disp.apply(ctx, stale, outcome)

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusRejected, stored.Status)
	require.Empty(t, f.notify.approvals)
	require.Equal(t, []string{"100"}, f.notify.rejections)
}

func TestDuplicateDelivery_SingleTerminalState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.disp.handleSubmit(ctx, submittedProposal("100"))

	f.disp.handleVeto(ctx, "100", "carol")
	f.disp.handleVeto(ctx, "100", "carol")
	f.disp.handleExpire(ctx, "100")
	f.disp.handleExpire(ctx, "100")

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusRejected, stored.Status)
	require.Equal(t, []string{"100"}, f.notify.rejections)
	require.Empty(t, f.notify.approvals)
}

func TestRehydrate_SchedulesAllPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		f.disp.handleSubmit(ctx, submittedProposal(id))
	}
	f.disp.handleVeto(ctx, "2", "carol")

	f.timers.scheduled = make(map[string]time.Time)
	require.NoError(t, f.disp.Rehydrate())

	require.Len(t, f.timers.scheduled, 2)
	require.Contains(t, f.timers.scheduled, "1")
	require.Contains(t, f.timers.scheduled, "3")
}

func TestMailbox_SerializesProducers(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.disp.Run(ctx)

	// Recovery ordering: an offline veto is enqueued before the stale
	// timer expiration, so the veto wins.
	f.disp.Submit(submittedProposal("100"))
	f.disp.Veto("100", "carol")
	f.disp.Expire("100")

	require.Eventually(t, func() bool {
		p, err := f.store.Get("100")
		return err == nil && p.Status.Terminal()
	}, time.Second, 5*time.Millisecond)

	stored, _ := f.store.Get("100")
	require.Equal(t, types.ProposalStatusRejected, stored.Status)
	require.Equal(t, "carol", stored.VetoedBy)
	require.Empty(t, f.notify.approvals)
}
