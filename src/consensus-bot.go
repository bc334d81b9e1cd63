package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/api"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/bot"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/config"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/data"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	dsn, err := data.GetMySQLDSN()
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	db, err := data.ConnectMySQL(dsn)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	if err := data.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	cfg := config.Load(db)
	if cfg.Token == "" {
		log.Fatal("discord_token not set in database or environment")
	}
	if cfg.GuildID == "" {
		log.Fatal("guild_id not set in database or environment")
	}
	if cfg.VetoRoleID == "" {
		log.Fatal("veto_role_id not set in database or environment")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb = data.MustRedis(cfg.RedisURL)
	}

	b, err := bot.New(cfg, db, rdb)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	if err := b.Start(); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}

	go func() {
		if err := api.New(db).Run(cfg.APIAddr); err != nil {
			log.Printf("API server stopped: %v", err)
		}
	}()

	log.Println("Consensus bot is running. Press CTRL-C to exit.")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	b.Stop()
	log.Println("Consensus bot stopped gracefully")
}
