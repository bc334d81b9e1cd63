package freefunding

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
	"gorm.io/gorm"
)

const (
	CommandName = "!tips"

	reactionSucceeded = "✅"
	reactionFailed    = "⚠️"

	usageMessage = "Usage: `!tips @recipient [@recipient...] amount description`"
)

// One or more mentions, a numeric amount, then a required description.
var commandPattern = regexp.MustCompile(`^!\w+\s+((?:<@!?\d+>\s+)+)([\d.]+)\s+([\w\W]+)$`)

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

var errInsufficientBalance = errors.New("insufficient balance")

type Config struct {
	DB             *gorm.DB
	GrantChannelID string
	SeasonLimit    float64
}

// Handler implements free funding: small grants sent immediately from
// a per-member seasonal balance, with no consensus window.
type Handler struct {
	config Config
}

func NewHandler(config Config) *Handler {
	return &Handler{config: config}
}

func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}

	if !strings.HasPrefix(m.Content, CommandName) {
		return
	}

	// Bare command returns the author's remaining balance.
	if strings.TrimSpace(m.Content) == CommandName {
		h.sendBalance(s, m)
		return
	}

	match := commandPattern.FindStringSubmatch(m.Content)
	if match == nil {
		h.reject(s, m, usageMessage)
		return
	}

	recipients := mentionPattern.FindAllStringSubmatch(match[1], -1)
	amount, err := strconv.ParseFloat(match[2], 64)
	if err != nil || amount <= 0 {
		h.reject(s, m, "Amount must be a positive number.")
		return
	}
	description := strings.TrimSpace(match[3])

	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r[1] == m.Author.ID {
			h.reject(s, m, "You cannot tip yourself.")
			return
		}
		ids = append(ids, r[1])
	}

	total := amount * float64(len(ids))

	if err := h.debit(m.Author.ID, total); err != nil {
		if errors.Is(err, errInsufficientBalance) {
			h.reject(s, m, "You don't have enough free funding left this season.")
		} else {
			log.Printf("Free funding debit failed for %s: %v", m.Author.ID, err)
			h.reject(s, m, "Could not process the transaction. Please try again.")
		}
		return
	}

	// Balance is debited before the grant message goes out; if posting
	// fails we log loudly rather than silently re-credit, mirroring the
	// accountant-controlled flow of the original system.
	if err := h.postGrant(s, m, ids, amount, description); err != nil {
		log.Printf("Failed to post free funding grant for %s: %v", m.Author.ID, err)
		h.reject(s, m, "Could not apply the grant. Please contact an admin.")
		return
	}

	tx := types.FreeFundingTransaction{
		Author:      m.Author.ID,
		Recipients:  strings.Join(ids, " "),
		Total:       total,
		Description: description,
		SubmittedAt: time.Now(),
	}
	if err := h.config.DB.Create(&tx).Error; err != nil {
		log.Printf("Failed to record free funding history for %s: %v", m.Author.ID, err)
	}

	if err := s.MessageReactionAdd(m.ChannelID, m.ID, reactionSucceeded); err != nil {
		log.Printf("Failed to react on %s: %v", m.ID, err)
	}

	log.Printf("Free funding sent: author=%s total=%.2f recipients=%v", m.Author.ID, total, ids)
}

// debit subtracts total from the author's balance, seeding the row at
// the seasonal limit on first use. The update is conditional on the
// balance still covering the total, so concurrent tips cannot
// overdraw.
func (h *Handler) debit(author string, total float64) error {
	return h.config.DB.Transaction(func(tx *gorm.DB) error {
		balance := types.FreeFundingBalance{Author: author, Balance: h.config.SeasonLimit}
		if err := tx.FirstOrCreate(&balance, types.FreeFundingBalance{Author: author}).Error; err != nil {
			return err
		}

		res := tx.Model(&types.FreeFundingBalance{}).
			Where("author = ? AND balance >= ?", author, total).
			Update("balance", gorm.Expr("balance - ?", total))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errInsufficientBalance
		}
		return nil
	})
}

func (h *Handler) sendBalance(s *discordgo.Session, m *discordgo.MessageCreate) {
	var balance types.FreeFundingBalance
	err := h.config.DB.First(&balance, "author = ?", m.Author.ID).Error
	remaining := h.config.SeasonLimit
	if err == nil {
		remaining = balance.Balance
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Balance lookup failed for %s: %v", m.Author.ID, err)
		h.reject(s, m, "Could not look up your balance. Please try again.")
		return
	}

	reply := fmt.Sprintf("You have %.2f free funding points left this season.", remaining)
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		log.Printf("Failed to reply to %s: %v", m.ID, err)
	}
}

func (h *Handler) postGrant(s *discordgo.Session, m *discordgo.MessageCreate, ids []string, amount float64, description string) error {
	mentions := make([]string, len(ids))
	for i, id := range ids {
		mentions[i] = "<@" + id + ">"
	}

	content := fmt.Sprintf("💸 <@%s> sends %.2f each to %s: %s",
		m.Author.ID, amount, strings.Join(mentions, " "), description)

	channelID := h.config.GrantChannelID
	if channelID == "" {
		channelID = m.ChannelID
	}

	_, err := s.ChannelMessageSend(channelID, content)
	return err
}

func (h *Handler) reject(s *discordgo.Session, m *discordgo.MessageCreate, reply string) {
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		log.Printf("Failed to reply to %s: %v", m.ID, err)
	}
	if err := s.MessageReactionAdd(m.ChannelID, m.ID, reactionFailed); err != nil {
		log.Printf("Failed to react on %s: %v", m.ID, err)
	}
}
