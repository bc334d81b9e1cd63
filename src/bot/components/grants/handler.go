package grants

import (
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/dispatch"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/lifecycle"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
)

const (
	CommandName = "!grant_proposal"

	reactionFailed = "⚠️"

	usageMessage = "Usage: `!grant_proposal @recipient amount [description]`"
)

// Command shape: mention, numeric amount, optional free-text description.
var commandPattern = regexp.MustCompile(`^!\w+\s+<@!?(\d+)>\s+(-?[\d.]+)(?:\s+([\w\W]+))?$`)

type Config struct {
	Dispatcher  *dispatch.Dispatcher
	Store       dispatch.Store
	GuildID     string
	VetoEmoji   string
	TimerWindow time.Duration
	PauseFile   string
}

// Handler is the Discord-facing front end: it turns command messages
// and veto reactions into dispatcher events. Everything it enqueues has
// already passed input validation; authorization stays with the
// dispatcher.
type Handler struct {
	config      Config
	rateLimiter *RateLimiter
}

func NewHandler(config Config) *Handler {
	return &Handler{
		config:      config,
		rateLimiter: NewRateLimiter(30 * time.Second),
	}
}

// HandleMessage processes !grant_proposal commands.
func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}

	if !strings.HasPrefix(m.Content, CommandName) {
		return
	}

	log.Printf("Grant proposal command received from %s in channel %s", m.Author.Username, m.ChannelID)

	if h.paused() {
		h.reject(s, m, "Grant proposals are temporarily paused. Please try again later.")
		return
	}

	if !h.rateLimiter.CanUse(m.Author.ID) {
		h.reject(s, m, "Please slow down and try again in a moment.")
		return
	}

	recipient, amount, description, ok := parseCommand(m.Content)
	if !ok {
		h.reject(s, m, usageMessage)
		return
	}

	if err := lifecycle.ValidateSubmission(m.Author.ID, recipient, amount); err != nil {
		h.reject(s, m, err.Error())
		return
	}

	now := time.Now()
	proposal := &types.Proposal{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		Proposer:    m.Author.ID,
		Recipient:   recipient,
		Amount:      amount,
		Description: description,
		Status:      types.ProposalStatusPending,
		SubmittedAt: now,
		ExpiresAt:   now.Add(h.config.TimerWindow),
	}

	h.config.Dispatcher.Submit(proposal)
}

// HandleReactionAdd forwards veto-emoji reactions to the dispatcher.
// Everything else about the reaction (does the message belong to a
// pending proposal, is the actor privileged) is decided there; invalid
// vetoes stay silent.
func (h *Handler) HandleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == s.State.User.ID {
		return
	}

	if r.Emoji.Name != h.config.VetoEmoji {
		return
	}

	h.config.Dispatcher.Veto(r.MessageID, r.UserID)
}

// SweepOfflineVetoes enqueues veto reactions that were added while the
// bot was down. Called on startup before timers are rehydrated, so a
// veto cast during downtime beats an already-expired timer.
func (h *Handler) SweepOfflineVetoes(s *discordgo.Session) {
	pending, err := h.config.Store.ListPending()
	if err != nil {
		log.Printf("Offline veto sweep skipped: %v", err)
		return
	}

	for i := range pending {
		p := &pending[i]
		for _, ref := range p.Messages {
			users, err := s.MessageReactions(p.ChannelID, ref.MessageID, h.config.VetoEmoji, 100, "", "")
			if err != nil {
				continue
			}
			for _, u := range users {
				if u.ID == s.State.User.ID {
					continue
				}
				log.Printf("Replaying offline veto on proposal %s by %s", p.ID, u.ID)
				h.config.Dispatcher.Veto(ref.MessageID, u.ID)
			}
		}
	}
}

func (h *Handler) paused() bool {
	if h.config.PauseFile == "" {
		return false
	}
	_, err := os.Stat(h.config.PauseFile)
	return err == nil
}

func (h *Handler) reject(s *discordgo.Session, m *discordgo.MessageCreate, reply string) {
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		log.Printf("Failed to reply to %s: %v", m.ID, err)
	}
	if err := s.MessageReactionAdd(m.ChannelID, m.ID, reactionFailed); err != nil {
		log.Printf("Failed to react on %s: %v", m.ID, err)
	}
	log.Printf("Rejected command from %s: %s", m.Author.ID, reply)
}

func parseCommand(content string) (recipient string, amount float64, description string, ok bool) {
	match := commandPattern.FindStringSubmatch(content)
	if match == nil {
		return "", 0, "", false
	}

	amount, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return "", 0, "", false
	}

	return match[1], amount, strings.TrimSpace(match[3]), true
}
