package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kayz/scribe/internal/bot"
	"github.com/kayz/scribe/internal/config"
	"github.com/kayz/scribe/internal/engine"
	"github.com/kayz/scribe/internal/platforms/discord"
	"github.com/kayz/scribe/internal/platforms/telegram"
	"github.com/kayz/scribe/internal/profile"
	"github.com/kayz/scribe/internal/router"
	"github.com/kayz/scribe/internal/session"
	"github.com/kayz/scribe/internal/templates"
	"github.com/kayz/scribe/internal/webui"
	"github.com/spf13/cobra"
)

var (
	servePort  int
	serveNoWeb bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat bots and the web server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Web listen port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoWeb, "no-web", false, "Do not start the web server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer applyConfigLogging(cmd, cfg)()
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base, unavailable := loadBaseSchema(cfg.Templates.Schema)

	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Session.TTL > 0 {
		sweeper, err := session.NewSweeper(store, cfg.Session.TTL, cfg.Session.SweepSchedule)
		if err != nil {
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	var opts []engine.Option
	var docs bot.DocumentSink
	if cfg.ProfilesEnabled() {
		profiles, err := profile.Open(ctx, cfg.Profile.Driver, cfg.Profile.DSN)
		if err != nil {
			log.Printf("[Serve] Profiles disabled: %v", err)
		} else {
			defer profiles.Close()
			opts = append(opts, engine.WithProfileStore(profiles))
			docs = profiles
			log.Printf("[Serve] Profiles stored with %s", cfg.Profile.Driver)
		}
	}

	eng := engine.New(store, base, opts...)
	tpls := templates.NewStore(cfg.Templates.Dir)
	handler := bot.New(bot.Config{
		Engine:      eng,
		Templates:   tpls,
		Documents:   docs,
		Allow:       cfg.Allowed,
		Unavailable: unavailable,
	})

	r := router.New(handler.HandleMessage)
	if err := registerPlatforms(r, cfg); err != nil {
		return err
	}
	if len(r.Platforms()) > 0 {
		if err := r.Start(ctx); err != nil {
			return err
		}
		defer r.Stop()
	}

	var httpServer *http.Server
	if !serveNoWeb && cfg.Server.Port > 0 {
		server := webui.NewServer(webui.Config{
			Processor:      handler,
			Engine:         eng,
			Templates:      tpls,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Allow:          cfg.Allowed,
			APIToken:       cfg.Server.APIToken,
		})
		httpServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("[Serve] Web listening on http://127.0.0.1:%d", cfg.Server.Port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[Serve] Web server error: %v", err)
				cancel()
			}
		}()
	}

	if httpServer == nil && len(r.Platforms()) == 0 {
		return fmt.Errorf("nothing to run: configure a bot token or enable the web server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	log.Printf("[Serve] Shutting down")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	return nil
}

// sessionStore is a session.Store that holds resources.
type sessionStore interface {
	session.Store
	Close() error
}

type memoryStore struct{ *session.MemoryStore }

func (memoryStore) Close() error { return nil }

func openSessionStore(ctx context.Context, cfg *config.Config) (sessionStore, error) {
	if !strings.EqualFold(cfg.Session.Backend, "redis") {
		log.Printf("[Serve] Sessions kept in memory")
		return memoryStore{session.NewMemoryStore()}, nil
	}
	store, err := session.NewRedisStore(ctx, session.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
		TTL:      cfg.Session.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open redis session store: %w", err)
	}
	log.Printf("[Serve] Sessions kept in redis at %s", cfg.Redis.Addr)
	return store, nil
}

func registerPlatforms(r *router.Router, cfg *config.Config) error {
	if token := cfg.Platforms.Telegram.Token; token != "" {
		p, err := telegram.New(telegram.Config{Token: token, Debug: cfg.Platforms.Telegram.Debug})
		if err != nil {
			return err
		}
		r.Register(p)
	}
	if token := cfg.Platforms.Discord.Token; token != "" {
		p, err := discord.New(discord.Config{Token: token})
		if err != nil {
			return err
		}
		r.Register(p)
	}
	return nil
}
