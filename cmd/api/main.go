package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/config"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/controller"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/database"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/mailer"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/ratelimit"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/storage"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/sumup"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/turnstile"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	cfg := config.Load()
	if cfg.Server.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := database.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	instrumentRepo := repository.NewInstrumentRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	eventRepo := repository.NewEventRepository(db)
	productRepo := repository.NewProductRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	webhookLogRepo := repository.NewWebhookLogRepository(db)
	emailLogRepo := repository.NewEmailLogRepository(db)
	jobLogRepo := repository.NewJobLogRepository(db)

	provider := sumup.NewClient(sumup.Config{
		BaseURL:       cfg.SumUp.BaseURL,
		ClientID:      cfg.SumUp.ClientID,
		ClientSecret:  cfg.SumUp.ClientSecret,
		MerchantCode:  cfg.SumUp.MerchantCode,
		WebhookSecret: cfg.SumUp.WebhookSecret,
	})
	verifier := turnstile.NewClient(cfg.Turnstile.Secret)
	sender := mailer.NewClient(cfg.Email.BaseURL, cfg.Email.APIKey, cfg.Email.From)
	notifier := service.NewNotifier(sender, emailLogRepo, cfg.Email.AdminAddr)

	var uploader storage.Uploader = storage.DisabledUploader{}
	if cfg.OSS.Endpoint != "" {
		ossUploader, err := storage.NewOSSUploader(&cfg.OSS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up oss uploader")
		}
		uploader = ossUploader
	}

	membershipLimiter, eventLimiter := buildLimiters(cfg)

	checkoutService := service.NewCheckoutService(
		userRepo, membershipRepo, eventRepo, productRepo, transactionRepo,
		provider, verifier, cfg.SumUp.ReturnURL)
	confirmService := service.NewConfirmService(
		userRepo, membershipRepo, instrumentRepo, eventRepo, productRepo,
		transactionRepo, webhookLogRepo, provider, notifier)
	renewalService := service.NewRenewalService(
		userRepo, membershipRepo, instrumentRepo, transactionRepo, jobLogRepo,
		provider, notifier, cfg.Renewal)
	membershipService := service.NewMembershipService(userRepo, membershipRepo, instrumentRepo)
	authService := service.NewAuthService(adminRepo, cfg.Auth)
	eventService := service.NewEventService(eventRepo)
	shopService := service.NewShopService(productRepo, uploader)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORS.Origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{
			echo.HeaderContentType, "Idempotency-Key",
			"X-Session-Token", "X-Admin-Key",
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		if err := db.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	controller.NewMembershipController(
		checkoutService, confirmService, membershipService, renewalService,
		membershipLimiter, cfg.Server.Debug).RegisterRoutes(e)
	controller.NewEventController(eventService, checkoutService, confirmService, eventLimiter, cfg.Server.Debug).RegisterRoutes(e)
	controller.NewShopController(shopService, checkoutService, confirmService, eventLimiter, cfg.Server.Debug).RegisterRoutes(e)
	controller.NewWebhookController(confirmService, cfg.Server.Debug).RegisterRoutes(e)
	controller.NewAdminController(
		authService, renewalService, membershipService, eventService, shopService,
		membershipRepo, emailLogRepo, jobLogRepo, cfg.Server.Debug).RegisterRoutes(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Renewal.SweepInterval > 0 {
		go runSweepTicker(ctx, renewalService, cfg.Renewal.SweepInterval)
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildLimiters picks Redis-backed limiters when an address is configured so
// multiple instances share counters, and in-process limiters otherwise.
func buildLimiters(cfg *config.Config) (ratelimit.Limiter, ratelimit.Limiter) {
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryLimiter(cfg.RateLimit.MembershipLimit, cfg.RateLimit.MembershipWindow),
			ratelimit.NewMemoryLimiter(cfg.RateLimit.EventLimit, cfg.RateLimit.EventWindow)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return ratelimit.NewRedisLimiter(client, "rl:membership", cfg.RateLimit.MembershipLimit, cfg.RateLimit.MembershipWindow),
		ratelimit.NewRedisLimiter(client, "rl:events", cfg.RateLimit.EventLimit, cfg.RateLimit.EventWindow)
}

func runSweepTicker(ctx context.Context, renewals service.RenewalService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := renewals.RunSweep(ctx); err != nil {
				log.Error().Err(err).Msg("scheduled sweep failed")
			}
		}
	}
}
