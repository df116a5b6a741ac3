// Package server initializes and runs the main application server. It
// wires the domain stores to their collaborators (persistence gateway,
// blob storage, mail notifier), rehydrates state at startup, and runs
// the HTTP endpoint plus the optional background expiry sweep.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/subit-dev/posterd/internal/logging"
	"github.com/subit-dev/posterd/internal/server/accounts"
	"github.com/subit-dev/posterd/internal/server/authz"
	"github.com/subit-dev/posterd/internal/server/blob"
	"github.com/subit-dev/posterd/internal/server/config"
	"github.com/subit-dev/posterd/internal/server/httpapi"
	"github.com/subit-dev/posterd/internal/server/ident"
	"github.com/subit-dev/posterd/internal/server/images"
	"github.com/subit-dev/posterd/internal/server/notify"
	"github.com/subit-dev/posterd/internal/server/persist"
	"github.com/subit-dev/posterd/internal/server/posts"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	gateway  persist.Gateway
	accounts *accounts.Store
	posts    *posts.Store
	images   *images.Cache
	httpSrv  *httpapi.Server
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	ctx := context.Background()

	var gateway persist.Gateway
	if c.DatabaseDSN != "" {
		pg, err := persist.NewPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		gateway = pg
	} else {
		logger.Warn(ctx, "no database DSN configured, state will not survive restarts")
		gateway = persist.NewMemory()
	}

	var blobs images.BlobStore
	if c.S3BaseEndpoint != "" {
		s3, err := blob.NewS3(ctx, blob.S3Options{
			RootUser:     c.S3RootUser,
			RootPassword: c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("blob storage init error: %w", err)
		}
		blobs = s3
	} else {
		logger.Warn(ctx, "no S3 endpoint configured, image blobs held in memory")
		blobs = blob.NewMemory()
	}

	var notifier accounts.Notifier
	if c.SMTPAddr != "" {
		notifier = notify.NewSMTP(c.SMTPAddr, c.SMTPFrom, c.SMTPUser, c.SMTPPassword)
	} else {
		notifier = notify.NewLog(logger)
	}

	existingAccounts, err := gateway.LoadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("account load error: %w", err)
	}
	existingImages, err := gateway.LoadImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("image load error: %w", err)
	}
	existingPosts, err := gateway.LoadPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("post load error: %w", err)
	}

	hasher := ident.NewFNV()

	as := accounts.NewStore(accounts.Options{
		AllowedEmailDomains:    c.AllowedEmailDomains,
		SecretKey:              []byte(c.SecretKey),
		VerificationTTL:        c.VerificationTTL,
		DefaultTokenExpireDays: c.TokenExpireDays,
	}, hasher, notifier, gateway, logger, existingAccounts)

	ic := images.NewCache(hasher, blobs, gateway, logger, existingImages)
	ps := posts.NewStore(hasher, ic, as, gateway, logger, existingPosts)

	gate := authz.New(as)
	httpSrv := httpapi.NewServer(c.EndpointAddrHTTP, []byte(c.SecretKey), logger, as, ps, ic, gate)

	return &App{
		config:   c,
		logger:   logger,
		gateway:  gateway,
		accounts: as,
		posts:    ps,
		images:   ic,
		httpSrv:  httpSrv,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runSweep clears expired signups, tokens, and verification sessions
// on a timer.
func (app *App) runSweep(ctx context.Context) {
	if app.config.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.accounts.RefreshAll(ctx)
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	// lazy expiry also runs per request; this clears anything that
	// expired while the process was down
	app.accounts.RefreshAll(ctx)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpSrv.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweep(ctx)
	}()

	wg.Wait()

	// one consistent dump on the way out, in case any per-mutation
	// save was lost
	snapshotCtx, cancelSnapshot := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSnapshot()
	if err := app.gateway.SaveSnapshot(snapshotCtx,
		app.accounts.Snapshot(), app.posts.Snapshot(), app.images.Snapshot()); err != nil {
		app.logger.Error(snapshotCtx, "shutdown snapshot failed", "err", err)
	}
	app.logger.Info(snapshotCtx, "Shutdown complete")
}
