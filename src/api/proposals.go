package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/types"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Proposals struct {
	db *gorm.DB
}

func NewProposals(db *gorm.DB) Proposals {
	return Proposals{db: db}
}

type proposalView struct {
	ID          string    `json:"id"`
	Proposer    string    `json:"proposer"`
	Recipient   string    `json:"recipient"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	VetoedBy    string    `json:"vetoedBy,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (p Proposals) List(c *gin.Context) {
	q := p.db.Model(&types.Proposal{}).Order("submitted_at DESC").Limit(200)

	if status := c.Query("status"); status != "" {
		switch types.ProposalStatus(status) {
		case types.ProposalStatusPending, types.ProposalStatusApproved, types.ProposalStatusRejected:
			q = q.Where("status = ?", status)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"err": "unknown status"})
			return
		}
	}

	var rows []types.Proposal
	if err := q.Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": "query failed"})
		return
	}

	out := make([]proposalView, len(rows))
	for i := range rows {
		out[i] = toView(&rows[i])
	}
	c.JSON(http.StatusOK, gin.H{"proposals": out})
}

func (p Proposals) Get(c *gin.Context) {
	var row types.Proposal
	err := p.db.First(&row, "id = ?", c.Param("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"err": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"err": "query failed"})
		return
	}

	c.JSON(http.StatusOK, toView(&row))
}

func toView(p *types.Proposal) proposalView {
	return proposalView{
		ID:          p.ID,
		Proposer:    p.Proposer,
		Recipient:   p.Recipient,
		Amount:      p.Amount,
		Description: p.Description,
		Status:      string(p.Status),
		VetoedBy:    p.VetoedBy,
		SubmittedAt: p.SubmittedAt,
		ExpiresAt:   p.ExpiresAt,
	}
}
