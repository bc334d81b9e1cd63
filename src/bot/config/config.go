package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/data"
	"gorm.io/gorm"
)

const (
	// Three days of silence approves a proposal.
	defaultTimerSeconds = 259200

	defaultVetoEmoji   = "❌"
	defaultSeasonLimit = 500
)

type Config struct {
	Token          string
	GuildID        string
	VetoRoleID     string
	VetoEmoji      string
	GrantChannelID string
	TimerWindow    time.Duration
	SeasonLimit    float64
	PauseFile      string
	RedisURL       string
	APIAddr        string
}

func Load(db *gorm.DB) Config {
	// Load settings from database
	if err := data.LoadSettings(db); err != nil {
		log.Printf("Failed to load settings: %v", err)
	}

	// Get values from database with env fallbacks
	token := setting("discord_token", "DISCORD_TOKEN")
	guildID := setting("guild_id", "GUILD_ID")
	vetoRoleID := setting("veto_role_id", "VETO_ROLE_ID")

	vetoEmoji := setting("veto_emoji", "VETO_EMOJI")
	if vetoEmoji == "" {
		vetoEmoji = defaultVetoEmoji
	}

	grantChannelID := setting("grant_channel_id", "GRANT_CHANNEL_ID")

	timerSeconds := defaultTimerSeconds
	if raw := setting("grant_proposal_timer_seconds", "GRANT_PROPOSAL_TIMER_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			timerSeconds = v
		} else {
			log.Printf("Ignoring bad grant_proposal_timer_seconds value %q", raw)
		}
	}

	seasonLimit := float64(defaultSeasonLimit)
	if raw := setting("free_funding_season_limit", "FREE_FUNDING_SEASON_LIMIT"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			seasonLimit = v
		} else {
			log.Printf("Ignoring bad free_funding_season_limit value %q", raw)
		}
	}

	return Config{
		Token:          token,
		GuildID:        guildID,
		VetoRoleID:     vetoRoleID,
		VetoEmoji:      vetoEmoji,
		GrantChannelID: grantChannelID,
		TimerWindow:    time.Duration(timerSeconds) * time.Second,
		SeasonLimit:    seasonLimit,
		PauseFile:      os.Getenv("PAUSE_FILE"),
		RedisURL:       os.Getenv("REDIS_URL"),
		APIAddr:        getenv("API_ADDR", ":8090"),
	}
}

func setting(name, envKey string) string {
	if v := data.GetSetting(name); v != "" {
		return v
	}
	return os.Getenv(envKey)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
