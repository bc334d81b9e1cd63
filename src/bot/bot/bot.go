package bot

import (
	"context"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/dispatch"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/freefunding"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/grants"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/store"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/components/timers"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/bot/config"
	"github.com/ecollectivexyz/eco-discord-consensus-bot/src/data"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Bot struct {
	session     *discordgo.Session
	db          *gorm.DB
	rdb         *redis.Client
	config      config.Config
	store       *store.Store
	registry    *timers.Registry
	dispatcher  *dispatch.Dispatcher
	grants      *grants.Handler
	freeFunding *freefunding.Handler
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func New(cfg config.Config, db *gorm.DB, rdb *redis.Client) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	bot := &Bot{
		session: dg,
		db:      db,
		rdb:     rdb,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}

	bot.initializeComponents()
	bot.registerHandlers()

	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuilds

	return bot, nil
}

func (b *Bot) initializeComponents() {
	b.store = store.New(b.db)

	// The registry fires into the dispatcher mailbox; the dispatcher is
	// created right after, so the closure resolves by the time any
	// timer can go off.
	b.registry = timers.New(clockwork.NewRealClock(), func(id string) {
		b.dispatcher.Expire(id)
	})

	var publisher dispatch.Publisher
	if b.rdb != nil {
		publisher = data.NewStreamPublisher(b.rdb)
	}

	b.dispatcher = dispatch.New(
		b.store,
		b.registry,
		grants.NewNotifier(b.session, b.config.VetoEmoji),
		grants.NewRoleAuthorizer(b.session, b.config.GuildID, b.config.VetoRoleID),
		publisher,
	)

	b.grants = grants.NewHandler(grants.Config{
		Dispatcher:  b.dispatcher,
		Store:       b.store,
		GuildID:     b.config.GuildID,
		VetoEmoji:   b.config.VetoEmoji,
		TimerWindow: b.config.TimerWindow,
		PauseFile:   b.config.PauseFile,
	})

	b.freeFunding = freefunding.NewHandler(freefunding.Config{
		DB:             b.db,
		GrantChannelID: b.config.GrantChannelID,
		SeasonLimit:    b.config.SeasonLimit,
	})
}

func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(b.grants.HandleMessage)
	b.session.AddHandler(b.grants.HandleReactionAdd)
	b.session.AddHandler(b.freeFunding.HandleMessage)
}

func (b *Bot) Start() error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatcher.Run(b.ctx)
	}()

	return b.session.Open()
}

func (b *Bot) Stop() {
	b.cancel()
	b.wg.Wait()
	b.registry.Stop()
	b.session.Close()
}

func (b *Bot) handleReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("Discord bot logged in as %s", event.User.Username)

	// Recovery: replay vetoes cast while offline before rebuilding
	// timers, so an offline veto beats an already-expired window.
	b.grants.SweepOfflineVetoes(s)

	if err := b.dispatcher.Rehydrate(); err != nil {
		log.Printf("Failed to rehydrate timers: %v", err)
	}
}
