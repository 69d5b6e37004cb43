// Package server wires configuration, storage, services and transports into
// the BANTX process. It runs either the API server (HTTP and gRPC) or the
// mail worker that drains the outbound mail queue.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/config"
	"github.com/dmitrijs2005/bantx/internal/server/httpapi"
	"github.com/dmitrijs2005/bantx/internal/server/mailer"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bantx/internal/server/services"

	gs "github.com/dmitrijs2005/bantx/internal/server/grpc"
)

const (
	ephemeralKeyBits      = 2048
	revocationPurgePeriod = time.Hour
	readHeaderTimeout     = 10 * time.Second
)

type App struct {
	config *config.Config
	logger logging.Logger

	repos  repomanager.RepositoryManager
	broker *mailer.Broker

	authService     *services.AuthService
	resetService    *services.PasswordResetService
	userService     *services.UserService
	documentService *services.DocumentService
}

// NewApp builds the process for c.Mode. The caller must Run it; resources
// opened here are released when Run returns.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(logging.NewSlog(os.Stdout, c.LogLevel, c.LogFormat))
	app := &App{config: c, logger: logger}

	if c.Mode == config.ModeMailer {
		broker, err := mailer.DialBroker(c.RabbitMQURL, c.MailQueueName)
		if err != nil {
			return nil, fmt.Errorf("mail queue init error: %w", err)
		}
		app.broker = broker
		return app, nil
	}

	repos, err := repomanager.Open(ctx, c.StoreDriver, storeDSN(c), c.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.Init(ctx); err != nil {
		_ = repos.Close(ctx)
		return nil, fmt.Errorf("db schema init error: %w", err)
	}
	app.repos = repos

	if err := app.initServices(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func storeDSN(c *config.Config) string {
	if c.StoreDriver == repomanager.DriverPostgres {
		return c.DatabaseDSN
	}
	return c.MongoURI
}

func (app *App) initServices(ctx context.Context) error {
	c := app.config

	keys, err := app.loadKeys(ctx)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(keys,
		auth.WithTTL(c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration),
		auth.WithIssuer(c.JWTIssuer),
	)
	if err != nil {
		return fmt.Errorf("token service init error: %w", err)
	}

	mail, err := app.newDispatcher()
	if err != nil {
		return err
	}

	app.authService = services.NewAuthService(app.repos, tokens, c.AdminSecret, app.logger.With("module", "auth"))
	app.resetService = services.NewPasswordResetService(app.repos.Users(), mail, c.FrontendURL,
		c.ResetTokenValidityDuration, app.logger.With("module", "password_reset"))
	app.userService = services.NewUserService(app.repos.Users(), app.logger.With("module", "users"))
	app.documentService = services.NewDocumentService(app.repos.Users(), c, app.logger.With("module", "documents"))
	return nil
}

// loadKeys reads the PEM pair from disk. With no paths configured it
// generates a throwaway pair, so tokens do not survive a restart.
func (app *App) loadKeys(ctx context.Context) (*auth.KeyMaterial, error) {
	c := app.config
	if c.JWTPrivateKeyPath == "" && c.JWTPublicKeyPath == "" {
		app.logger.Warn(ctx, "no JWT key files configured, generating an ephemeral key pair")
		keys, err := auth.GenerateKeyMaterial(ephemeralKeyBits)
		if err != nil {
			return nil, fmt.Errorf("generate keys: %w", err)
		}
		return keys, nil
	}
	keys, err := auth.LoadKeyMaterial(c.JWTPrivateKeyPath, c.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	if !keys.CanSign() {
		app.logger.Warn(ctx, "no JWT private key configured, token issuance is disabled")
	}
	return keys, nil
}

// newDispatcher picks the outbound mail transport of the API server.
func (app *App) newDispatcher() (mailer.Dispatcher, error) {
	c := app.config
	switch c.MailTransport {
	case config.MailTransportSMTP:
		d, err := mailer.NewSMTPDispatcher(app.smtpConfig())
		if err != nil {
			return nil, fmt.Errorf("smtp init error: %w", err)
		}
		return d, nil
	case config.MailTransportQueue:
		broker, err := mailer.DialBroker(c.RabbitMQURL, c.MailQueueName)
		if err != nil {
			return nil, fmt.Errorf("mail queue init error: %w", err)
		}
		app.broker = broker
		return broker.Dispatcher(), nil
	default:
		return mailer.NewLogDispatcher(app.logger.With("module", "mail")), nil
	}
}

func (app *App) smtpConfig() mailer.SMTPConfig {
	c := app.config
	return mailer.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
		TLS:      c.SMTPTLS,
	}
}

func (app *App) close(ctx context.Context) {
	if app.broker != nil {
		if err := app.broker.Close(); err != nil {
			app.logger.Error(ctx, "close mail queue", "error", err)
		}
	}
	if app.repos != nil {
		if err := app.repos.Close(ctx); err != nil {
			app.logger.Error(ctx, "close store", "error", err)
		}
	}
}

// Run blocks until SIGINT/SIGTERM/SIGQUIT or until a component fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...", "mode", app.config.Mode)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		app.close(closeCtx)
	}()

	if app.config.Mode == config.ModeMailer {
		return app.runMailer(ctx)
	}
	return app.runServer(ctx)
}

func (app *App) runServer(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
		cancel()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := app.startHTTPServer(ctx); err != nil {
			app.logger.Error(ctx, "http server failed", "error", err)
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authService).Run(ctx); err != nil {
			app.logger.Error(ctx, "grpc server failed", "error", err)
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		app.purgeRevocations(ctx, revocationPurgePeriod)
	}()

	wg.Wait()
	return firstErr
}

func (app *App) startHTTPServer(ctx context.Context) error {
	c := app.config
	router := httpapi.NewRouter(httpapi.Deps{
		Auth:      app.authService,
		Reset:     app.resetService,
		Users:     app.userService,
		Documents: app.documentService,
		Health:    app.repos,
		Log:       app.logger.With("module", "http"),
		Options: httpapi.Options{
			CookieSecure:       c.CookieSecure,
			RefreshTTL:         c.RefreshTokenValidityDuration,
			CORSAllowedOrigins: c.CORSAllowedOrigins,
			RateLimitRequests:  c.RateLimitRequests,
			RateLimitWindow:    c.RateLimitWindow,
		},
	})

	srv := &http.Server{
		Addr:              c.EndpointAddrHTTP,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		app.logger.Info(shutdownCtx, "Stopping HTTP server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", c.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// purgeRevocations drops expired revocation entries every period until ctx
// is done. MongoDB also expires them with a TTL index.
func (app *App) purgeRevocations(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := app.authService.PurgeRevocations(ctx)
			if err != nil {
				app.logger.Error(ctx, "purge revocations", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "purged expired revocations", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// workerDispatcher is where the mailer mode delivers queued messages: SMTP
// when a host is configured, the log otherwise.
func (app *App) workerDispatcher() (mailer.Dispatcher, error) {
	if app.config.SMTPHost == "" {
		return mailer.NewLogDispatcher(app.logger.With("module", "mail")), nil
	}
	d, err := mailer.NewSMTPDispatcher(app.smtpConfig())
	if err != nil {
		return nil, fmt.Errorf("smtp init error: %w", err)
	}
	return d, nil
}

// runMailer consumes queued messages and hands them to workerDispatcher.
func (app *App) runMailer(ctx context.Context) error {
	out, err := app.workerDispatcher()
	if err != nil {
		return err
	}

	deliveries, err := app.broker.Consume()
	if err != nil {
		return fmt.Errorf("consume mail queue: %w", err)
	}
	app.logger.Info(ctx, "Mail worker started", "queue", app.config.MailQueueName)
	return mailer.NewWorker(out, app.logger.With("module", "mail_worker")).Run(ctx, deliveries)
}
