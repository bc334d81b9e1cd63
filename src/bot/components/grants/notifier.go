package grants

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
)

// Notifier posts lifecycle notices into the proposal's channel.
type Notifier struct {
	session   *discordgo.Session
	vetoEmoji string
}

func NewNotifier(s *discordgo.Session, vetoEmoji string) *Notifier {
	return &Notifier{session: s, vetoEmoji: vetoEmoji}
}

// PostConfirmation announces a new pending proposal and returns the
// confirmation message id, which becomes an additional veto target.
func (n *Notifier) PostConfirmation(p *types.Proposal) (string, error) {
	embed := &discordgo.MessageEmbed{
		Title: "Grant Proposal",
		Description: fmt.Sprintf("<@%s> proposes a grant of %s to <@%s>.",
			p.Proposer, formatAmount(p.Amount), p.Recipient),
		Color: 0x0099ff,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Approves",
				Value: fmt.Sprintf("<t:%d:R>, unless vetoed", p.ExpiresAt.Unix()),
			},
			{
				Name:  "How to object",
				Value: fmt.Sprintf("React with %s on this message to veto (veto role required).", n.vetoEmoji),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Lazy consensus: silence is approval",
		},
		Timestamp: p.SubmittedAt.Format(time.RFC3339),
	}

	if p.Description != "" {
		embed.Fields = append([]*discordgo.MessageEmbedField{
			{Name: "Description", Value: p.Description},
		}, embed.Fields...)
	}

	msg, err := n.session.ChannelMessageSendEmbed(p.ChannelID, embed)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// PostApproval announces that the quiet window elapsed.
func (n *Notifier) PostApproval(p *types.Proposal) error {
	content := fmt.Sprintf("✅ Grant proposal by <@%s> has been approved: %s to <@%s>.",
		p.Proposer, formatAmount(p.Amount), p.Recipient)
	_, err := n.session.ChannelMessageSend(p.ChannelID, content)
	return err
}

// PostRejection names the objector, as the audit record does.
func (n *Notifier) PostRejection(p *types.Proposal) error {
	content := fmt.Sprintf("❌ Grant proposal by <@%s> (%s to <@%s>) was vetoed by <@%s>.",
		p.Proposer, formatAmount(p.Amount), p.Recipient, p.VetoedBy)
	_, err := n.session.ChannelMessageSend(p.ChannelID, content)
	return err
}

func formatAmount(amount float64) string {
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("%d points", int64(amount))
	}
	return fmt.Sprintf("%.2f points", amount)
}
