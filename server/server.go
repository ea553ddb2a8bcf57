// Package server assembles the HTTP application from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"

	"github.com/safebite/safebite-api/auth"
	"github.com/safebite/safebite-api/config"
	"github.com/safebite/safebite-api/logging"
	"github.com/safebite/safebite-api/mailer"
	"github.com/safebite/safebite-api/middleware/jwtware"
	"github.com/safebite/safebite-api/profile"
	"github.com/safebite/safebite-api/ratelimit"
	"github.com/safebite/safebite-api/storage"
)

var errTooManyRequests = goerrors.New("too many requests, please try again later", goerrors.CategoryRateLimit).
	WithTextCode("RATE_LIMITED").
	WithCode(fiber.StatusTooManyRequests)

// Server owns the HTTP server and everything it holds open.
type Server struct {
	App    *fiber.App
	Srv    router.Server[*fiber.App]
	DB     *bun.DB
	Repo   auth.RepositoryManager
	Tokens *auth.TokenService

	cfg       *config.Config
	logger    logging.Logger
	limiter   fiber.Storage
	started   time.Time
	closeDB   bool
	generator *auth.TokenGenerator
	store     storage.PhotoStore
	mail      auth.Mailer
}

type Option func(*Server)

// WithDB uses db instead of opening one from configuration. The caller keeps
// ownership.
func WithDB(db *bun.DB) Option {
	return func(s *Server) {
		s.DB = db
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithPhotoStore(store storage.PhotoStore) Option {
	return func(s *Server) {
		s.store = store
	}
}

func WithMailer(m auth.Mailer) Option {
	return func(s *Server) {
		s.mail = m
	}
}

func WithLimiterStorage(st fiber.Storage) Option {
	return func(s *Server) {
		s.limiter = st
	}
}

// WithClock drives token expiry for flow tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.generator = auth.NewTokenGenerator(auth.WithClock(now))
	}
}

// New validates cfg, connects dependencies and mounts every route.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		logger:  logging.Nop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	auth.SetPhoneRegion(cfg.PhoneRegion)

	tokens, err := auth.NewTokenService(auth.TokenServiceConfig{
		SigningKey: []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTTL(),
		Issuer:     cfg.JWTIssuer,
	}, auth.WithTokenServiceLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.Tokens = tokens

	if s.DB == nil {
		db, err := OpenDB(ctx, cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		s.DB = db
		s.closeDB = true
	}

	s.Repo = auth.NewRepositoryManager(s.DB)
	s.Repo.MustValidate()

	if err := s.initStore(ctx); err != nil {
		s.Shutdown(ctx)
		return nil, err
	}

	if err := s.initMailer(); err != nil {
		s.Shutdown(ctx)
		return nil, err
	}

	if err := s.initLimiter(ctx); err != nil {
		s.Shutdown(ctx)
		return nil, err
	}

	if s.generator == nil {
		s.generator = auth.NewTokenGenerator()
	}

	s.buildApp()
	return s, nil
}

func (s *Server) initStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}

	switch s.cfg.StorageDriver {
	case "s3":
		s3cfg := storage.S3Config{
			Bucket:    s.cfg.S3Bucket,
			Region:    s.cfg.S3Region,
			Endpoint:  s.cfg.S3Endpoint,
			AccessKey: s.cfg.S3AccessKey,
			SecretKey: s.cfg.S3SecretKey,
			PublicURL: s.cfg.S3PublicURL,
		}
		client, err := storage.NewS3Client(ctx, s3cfg)
		if err != nil {
			return err
		}
		s.store = storage.NewS3Store(client, s3cfg)
	default:
		disk, err := storage.NewDiskStore(s.cfg.UploadPath, s.cfg.APIBaseURL)
		if err != nil {
			return err
		}
		s.store = disk
	}
	return nil
}

func (s *Server) initMailer() error {
	if s.mail != nil {
		return nil
	}

	var sender mailer.Sender = mailer.NewLogSender(s.logger)
	if s.cfg.UseSMTP() {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     s.cfg.EmailHost,
			Port:     s.cfg.EmailPort,
			Username: s.cfg.EmailUser,
			Password: s.cfg.EmailPassword,
			From:     s.cfg.EmailFrom,
		})
	}

	m, err := mailer.New(sender, s.cfg.FrontendURL, mailer.WithLogger(s.logger))
	if err != nil {
		return err
	}
	s.mail = m
	return nil
}

func (s *Server) initLimiter(ctx context.Context) error {
	if s.limiter != nil || s.cfg.RateLimitRedisURL == "" {
		return nil
	}

	st, err := ratelimit.NewRedisStorageFromURL(ctx, s.cfg.RateLimitRedisURL, "")
	if err != nil {
		return err
	}
	s.limiter = st
	return nil
}

func (s *Server) buildApp() {
	dev := s.cfg.IsDevelopment()

	s.Srv = router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		s.App = fiber.New(fiber.Config{
			AppName:               "safebite-api",
			ErrorHandler:          auth.NewErrorHandler(s.logger, dev),
			BodyLimit:             int(s.cfg.MaxFileSize) + 1024*1024,
			DisableStartupMessage: true,
		})
		return s.App
	})

	app := s.App
	app.Use(recover.New(recover.Config{EnableStackTrace: dev}))
	app.Use(requestid.New())
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigin,
		AllowCredentials: s.cfg.CORSOrigin != "*",
	}))
	app.Use("/api", limiter.New(limiter.Config{
		Max:        s.cfg.RateLimitMaxRequests,
		Expiration: s.cfg.RateLimitWindow(),
		Storage:    s.limiter,
		LimitReached: func(*fiber.Ctx) error {
			return errTooManyRequests
		},
	}))

	if disk, ok := s.store.(*storage.DiskStore); ok {
		app.Static(storage.UploadsRoute, disk.Root())
	}

	gateCfg := jwtware.Config{
		TokenValidator:   s.Tokens,
		IdentityResolver: auth.NewIdentityProvider(s.Repo.Users()),
		Logger:           s.logger,
	}
	gate := jwtware.New(gateCfg)
	optionalGate := jwtware.NewOptional(gateCfg)

	ctrl := profile.RegisterProfileRoutes(app.Group("/api/users"), jwtware.NewFiber(gateCfg),
		profile.WithRepository(s.Repo),
		profile.WithPhotoStore(s.store),
		profile.WithLogger(s.logger),
		profile.WithUploadLimits(s.cfg.MaxFileSize, s.cfg.AllowedTypes()),
	)

	r := s.Srv.Router()

	r.Get("/", func(ctx router.Context) error {
		return auth.Respond(ctx, fiber.StatusOK, "SafeBite API", map[string]any{
			"version": "1.0.0",
			"endpoints": map[string]any{
				"auth":   "/api/auth",
				"users":  "/api/users",
				"health": "/api/health",
			},
		})
	}).SetName("root")

	api := r.Group("/api")
	api.Get("/health", s.health).SetName("health")

	auth.RegisterAuthRoutes(api.Group("/auth"),
		auth.WithRepository(s.Repo),
		auth.WithTokenService(s.Tokens),
		auth.WithTokenGenerator(s.generator),
		auth.WithMailer(s.mail),
		auth.WithControllerLogger(s.logger),
		auth.WithPhotoURLResolver(ctrl.PhotoURL),
		auth.WithOptionalAuth(optionalGate),
		auth.WithHashidIdentifiers(s.cfg.UseHashid),
		auth.WithDebug(dev),
	)

	api.Get("/test/protected", func(ctx router.Context) error {
		identity, _ := auth.IdentityFromRouter(ctx)
		return auth.Respond(ctx, fiber.StatusOK, "protected route accessed successfully", map[string]any{
			"user": identity,
		})
	}, gate).SetName("test.protected")
}

func (s *Server) health(ctx router.Context) error {
	status := "OK"
	if err := s.DB.PingContext(ctx.Context()); err != nil {
		s.logger.Error("health check database ping failed: %v", err)
		status = "DEGRADED"
	}
	return auth.Respond(ctx, fiber.StatusOK, "API is running", map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Seconds(),
	})
}

// Listen blocks serving on the configured port.
func (s *Server) Listen() error {
	return s.Srv.Serve(fmt.Sprintf(":%d", s.cfg.Port))
}

// Shutdown stops the app and releases what New opened.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.App != nil {
		errs = append(errs, s.App.ShutdownWithContext(ctx))
	}
	if s.limiter != nil {
		errs = append(errs, s.limiter.Close())
	}
	if s.closeDB && s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}
