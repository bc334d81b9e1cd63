package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// New builds the read-only audit API over the proposal table.
func New(db *gorm.DB) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	attachRoutes(g, db)
	return g
}

func attachRoutes(g *gin.Engine, db *gorm.DB) {
	proposals := NewProposals(db)

	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	v1 := g.Group("/v1")
	v1.GET("/proposals", proposals.List)
	v1.GET("/proposals/:id", proposals.Get)
}
