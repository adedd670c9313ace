package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/cah-client/internal/catalog"
	"github.com/DoyleJ11/cah-client/internal/config"
	"github.com/DoyleJ11/cah-client/internal/conn"
	"github.com/DoyleJ11/cah-client/internal/feed"
	"github.com/DoyleJ11/cah-client/internal/httpapi"
	"github.com/DoyleJ11/cah-client/internal/notify"
	"github.com/DoyleJ11/cah-client/internal/rest"
	"github.com/DoyleJ11/cah-client/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	log, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("client stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One cookie jar for every service: the auth cookies ride along to the game server.
	hc := rest.NewHTTPClient()
	auth, err := rest.NewAuthClient(cfg.AuthAPIBase, hc)
	if err != nil {
		return err
	}
	gameServer, err := rest.NewGameServerClient(cfg.GameServerAPIBase, hc)
	if err != nil {
		return err
	}
	deckAPI, err := rest.NewDeckClient(cfg.DeckAPIBase, hc)
	if err != nil {
		return err
	}

	var repo catalog.Repository = catalog.NewMemoryRepository()
	if cfg.DatabaseURL != "" {
		pg, err := catalog.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		repo = pg
	}
	decks := catalog.NewService(deckAPI, repo, log)

	recent := notify.NewRecorder(50)
	events := feed.New(ctx)
	mgr := conn.NewManager(ctx, conn.Config{
		Dialer: &transport.StompDialer{
			URL:              cfg.GameServerSocket,
			HandshakeTimeout: cfg.HandshakeTimeout,
			HTTPClient:       &http.Client{Jar: hc.Jar},
			Log:              log,
		},
		Tokens:   auth,
		CSRF:     gameServer,
		Notifier: notify.Multi{notify.NewLogger(log), recent, events},
		Log:      log,
	})

	if err := mgr.SetIdentity(ctx, currentIdentity(ctx, auth, log)); err != nil {
		log.Warn("initial connection failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Conn:          mgr,
			Auth:          auth,
			Decks:         decks,
			Notifications: recent,
			Feed:          events,
			Log:           log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(
			srv.Shutdown(sctx),
			mgr.Shutdown(sctx),
			decks.Close(),
		)
	})
	return g.Wait()
}

// currentIdentity asks the auth service who is signed in. Any failure means
// connecting anonymously.
func currentIdentity(ctx context.Context, auth *rest.AuthClient, log *zap.Logger) *conn.Identity {
	if _, err := auth.RefreshAccessToken(ctx); err != nil {
		log.Debug("access token refresh failed", zap.Error(err))
	}
	u, err := auth.CurrentUser(ctx)
	if err != nil {
		log.Warn("could not look up the signed-in user", zap.Error(err))
		return nil
	}
	if u == nil {
		return nil
	}
	return &conn.Identity{UserID: u.ID, Nickname: u.Nickname}
}
