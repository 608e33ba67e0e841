package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eizes/gis-gateway/authflow"
	"github.com/eizes/gis-gateway/internal/config"
	"github.com/eizes/gis-gateway/internal/secrets"
	"github.com/eizes/gis-gateway/mapping"
	"github.com/eizes/gis-gateway/schema"
	"github.com/eizes/gis-gateway/server"
	"github.com/eizes/gis-gateway/sessions"
	"github.com/eizes/gis-gateway/vault"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			debug.PrintStack()
			returnError = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	configureLogging(c)
	displayAppname(c.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := buildServer(ctx, c)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.Port, Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildServer(ctx context.Context, c *config.Config) (*server.Server, error) {
	cipher, err := secrets.NewCipher(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("secrets.NewCipher: %w", err)
	}

	repo, err := vault.OpenSQLite(c.VaultDBPath)
	if err != nil {
		return nil, fmt.Errorf("vault.OpenSQLite: %w", err)
	}

	validator := schema.NewValidator()
	v := vault.New(repo, cipher, validator)
	if err := v.Seed(ctx); err != nil {
		return nil, fmt.Errorf("vault.Seed: %w", err)
	}
	if c.HasIdPBootstrap() {
		err := v.ProvisionIdentityProvider(ctx, vault.ProviderConfig{
			BaseURL:      c.IdPBaseURL,
			Realm:        c.IdPRealm,
			ClientID:     c.IdPClientID,
			ClientSecret: secrets.Secret(c.IdPClientSecret),
		})
		if err != nil {
			return nil, fmt.Errorf("vault.ProvisionIdentityProvider: %w", err)
		}
	}

	store, err := buildSessionStore(ctx, c)
	if err != nil {
		return nil, err
	}

	flow := authflow.New(v, store, c.RedirectURL(), c.RequiredGroup,
		authflow.WithSessionTTL(c.SessionTTL))
	lister := mapping.NewLister(v)

	return server.New(c, store, flow, v, validator, lister), nil
}

func buildSessionStore(ctx context.Context, c *config.Config) (sessions.Store, error) {
	switch c.SessionStore {
	case config.SessionStoreRedis:
		store, err := sessions.NewRedisStore(ctx, sessions.RedisConfig{
			Addr:     c.RedisAddr,
			Username: c.RedisUsername,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("sessions.NewRedisStore: %w", err)
		}
		log.Info().Str("addr", c.RedisAddr).Msg("using redis session store")
		return store, nil
	default:
		store := sessions.NewMemoryStore()
		store.StartSweeper(ctx, 15*time.Minute)
		log.Info().Msg("using in-memory session store")
		return store, nil
	}
}

func configureLogging(c *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if c.Env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
