package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/lifecycle"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/store"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
)

// Store is the durable proposal table the dispatcher writes through.
type Store interface {
	Create(p *types.Proposal) error
	AddMessageRef(proposalID, messageID, kind string) error
	Get(id string) (*types.Proposal, error)
	FindByMessage(messageID string) (*types.Proposal, error)
	ListPending() ([]types.Proposal, error)
	MarkApproved(id string) error
	MarkRejected(id, vetoedBy string) error
}

// Timers is the in-memory expiration registry.
type Timers interface {
	Schedule(id string, expiresAt time.Time)
	Cancel(id string)
}

// Notifier posts the bot's outward-facing messages.
type Notifier interface {
	PostConfirmation(p *types.Proposal) (messageID string, err error)
	PostApproval(p *types.Proposal) error
	PostRejection(p *types.Proposal) error
}

// Authorizer is the injected privilege check for vetoes.
type Authorizer interface {
	CanVeto(userID string) bool
}

// Publisher emits lifecycle events to an external audit stream.
type Publisher interface {
	ProposalEvent(ctx context.Context, kind string, p *types.Proposal)
}

type eventKind int

const (
	eventSubmit eventKind = iota
	eventVeto
	eventExpire
)

type event struct {
	kind       eventKind
	proposal   *types.Proposal // submit
	messageID  string          // veto target
	actor      string          // veto actor
	proposalID string          // expire
}

// Dispatcher serializes every proposal event through one consumer
// goroutine, so no two events for the same proposal are ever handled
// concurrently. Producers (Discord handlers, timer callbacks, the
// recovery sweep) only enqueue.
type Dispatcher struct {
	store   Store
	timers  Timers
	notify  Notifier
	auth    Authorizer
	publish Publisher // optional

	events chan event
}

func New(st Store, timers Timers, notify Notifier, auth Authorizer, publish Publisher) *Dispatcher {
	return &Dispatcher{
		store:   st,
		timers:  timers,
		notify:  notify,
		auth:    auth,
		publish: publish,
		events:  make(chan event, 256),
	}
}

// Submit enqueues a validated ProposalSubmitted event.
func (d *Dispatcher) Submit(p *types.Proposal) {
	d.events <- event{kind: eventSubmit, proposal: p}
}

// Veto enqueues a VetoReceived event for the given reacted-to message.
func (d *Dispatcher) Veto(messageID, actor string) {
	d.events <- event{kind: eventVeto, messageID: messageID, actor: actor}
}

// Expire enqueues a TimerExpired event.
func (d *Dispatcher) Expire(proposalID string) {
	d.events <- event{kind: eventExpire, proposalID: proposalID}
}

// Run consumes the mailbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Println("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Println("Dispatcher stopped")
			return
		case ev := <-d.events:
			d.handle(ctx, ev)
		}
	}
}

// Rehydrate rebuilds the timer registry from the store. Expired
// deadlines are scheduled anyway and fire immediately. Called once on
// startup, after any offline-veto sweep has been enqueued.
func (d *Dispatcher) Rehydrate() error {
	pending, err := d.store.ListPending()
	if err != nil {
		return err
	}
	for i := range pending {
		d.timers.Schedule(pending[i].ID, pending[i].ExpiresAt)
	}
	log.Printf("Rehydrated %d pending proposal timer(s)", len(pending))
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventSubmit:
		d.handleSubmit(ctx, ev.proposal)
	case eventVeto:
		d.handleVeto(ctx, ev.messageID, ev.actor)
	case eventExpire:
		d.handleExpire(ctx, ev.proposalID)
	}
}

func (d *Dispatcher) handleSubmit(ctx context.Context, p *types.Proposal) {
	if err := lifecycle.ValidateSubmission(p.Proposer, p.Recipient, p.Amount); err != nil {
		// The front end validates before enqueueing; reaching this
		// point means a producer bug, so only log.
		log.Printf("Dropping invalid submission %s: %v", p.ID, err)
		return
	}

	if err := d.store.Create(p); err != nil {
		// Persistence failed: no timer, no confirmation. The proposal
		// is simply not created.
		log.Printf("Failed to persist proposal %s: %v", p.ID, err)
		return
	}

	d.timers.Schedule(p.ID, p.ExpiresAt)

	msgID, err := d.notify.PostConfirmation(p)
	if err != nil {
		log.Printf("Failed to post confirmation for %s: %v", p.ID, err)
	} else if msgID != "" {
		if err := d.store.AddMessageRef(p.ID, msgID, types.MessageKindConfirmation); err != nil {
			log.Printf("Failed to record confirmation ref for %s: %v", p.ID, err)
		}
	}

	d.emit(ctx, "submitted", p)
	log.Printf("Proposal %s created: %s grants %.2f to %s, expires %s",
		p.ID, p.Proposer, p.Amount, p.Recipient, p.ExpiresAt.Format(time.RFC3339))
}

func (d *Dispatcher) handleVeto(ctx context.Context, messageID, actor string) {
	p, err := d.store.FindByMessage(messageID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Veto lookup failed for message %s: %v", messageID, err)
		}
		// Unknown message: silently ignored.
		return
	}

	outcome, ok := lifecycle.OnVeto(p, true, d.auth.CanVeto(actor))
	if !ok {
		// Unauthorized actor or already resolved: silently ignored.
		return
	}

	p.VetoedBy = actor
	d.apply(ctx, p, outcome)
}

func (d *Dispatcher) handleExpire(ctx context.Context, proposalID string) {
	p, err := d.store.Get(proposalID)
	if err != nil {
		log.Printf("Expiry lookup failed for %s: %v", proposalID, err)
		return
	}

	outcome, ok := lifecycle.OnExpiry(p)
	if !ok {
		return
	}

	d.apply(ctx, p, outcome)
}

// apply executes the effect list in order. Persistence comes first in
// every effect list the state machine produces, so a lost race or a
// failed write suppresses all outward effects.
func (d *Dispatcher) apply(ctx context.Context, p *types.Proposal, outcome lifecycle.Outcome) {
	for _, effect := range outcome.Effects {
		switch effect {
		case lifecycle.EffectPersistRejected:
			if err := d.store.MarkRejected(p.ID, p.VetoedBy); err != nil {
				if errors.Is(err, store.ErrAlreadyResolved) {
					log.Printf("Veto on %s lost the race, already resolved", p.ID)
				} else {
					log.Printf("Failed to persist rejection of %s: %v", p.ID, err)
				}
				return
			}
			p.Status = types.ProposalStatusRejected
		case lifecycle.EffectPersistApproved:
			if err := d.store.MarkApproved(p.ID); err != nil {
				if errors.Is(err, store.ErrAlreadyResolved) {
					log.Printf("Expiry of %s lost the race, already resolved", p.ID)
				} else {
					log.Printf("Failed to persist approval of %s: %v", p.ID, err)
				}
				return
			}
			p.Status = types.ProposalStatusApproved
		case lifecycle.EffectCancelTimer:
			d.timers.Cancel(p.ID)
		case lifecycle.EffectPostRejection:
			if err := d.notify.PostRejection(p); err != nil {
				log.Printf("Failed to post rejection notice for %s: %v", p.ID, err)
			}
			d.emit(ctx, "rejected", p)
			log.Printf("Proposal %s rejected, vetoed by %s", p.ID, p.VetoedBy)
		case lifecycle.EffectPostApproval:
			if err := d.notify.PostApproval(p); err != nil {
				log.Printf("Failed to post approval notice for %s: %v", p.ID, err)
			}
			d.emit(ctx, "approved", p)
			log.Printf("Proposal %s approved after quiet window", p.ID)
		}
	}
}

func (d *Dispatcher) emit(ctx context.Context, kind string, p *types.Proposal) {
	if d.publish == nil {
		return
	}
	d.publish.ProposalEvent(ctx, kind, p)
}
