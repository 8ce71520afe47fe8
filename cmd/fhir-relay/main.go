package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/carebridge-health/fhir-relay/internal/api"
	"github.com/carebridge-health/fhir-relay/internal/auth"
	"github.com/carebridge-health/fhir-relay/internal/events"
	"github.com/carebridge-health/fhir-relay/internal/fhir"
	"github.com/carebridge-health/fhir-relay/pkg/config"
	"github.com/carebridge-health/fhir-relay/pkg/logger"
	"github.com/carebridge-health/fhir-relay/pkg/secrets"
	"github.com/carebridge-health/fhir-relay/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [fhir-relay]...")

	creds := auth.Credentials{
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.Scope,
		TokenURL:     cfg.TokenURL,
	}

	// Client secret can live in AWS Secrets Manager instead of the environment.
	if creds.ClientSecret == "" && cfg.SecretName != "" {
		provider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to init AWS provider", "error", err)
		}
		secretMap, err := provider.GetSecret(ctx, cfg.SecretName)
		if err != nil {
			logg.Fatalw("failed to resolve FHIR credentials", "error", err, "secret", cfg.SecretName)
		}
		creds.ClientSecret = secretMap["client_secret"]
		if creds.ClientID == "" {
			creds.ClientID = secretMap["client_id"]
		}
	}

	if err := creds.Validate(); err != nil {
		logg.Fatalw("incomplete identity-provider credentials", "error", err)
	}
	logg.Infow("identity provider configured",
		"client_id", utils.MaskSecret(creds.ClientID),
		"token_url", creds.TokenURL,
		"token_cache", cfg.TokenCache)

	tokenCache, err := auth.NewCacheFromMode(logger.L(), cfg.TokenCache, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		logg.Fatalw("failed to init token cache", "error", err)
	}

	tokens := auth.NewProvider(logger.L(), creds, cfg.HTTPTimeout, tokenCache)
	relay := fhir.NewClient(logger.L(), cfg.FHIRBaseURL, cfg.HTTPTimeout, cfg.PageSize)

	// Optional audit-event publishing.
	var pub *events.Publisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		defer nc.Drain() //nolint:errcheck

		pub, err = events.New(logger.L(), nc, cfg.AuditSubject, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init audit publisher", "error", err)
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	})

	h := &api.Handler{
		Logger: logger.L(),
		Relay:  relay,
		Events: pub,
	}
	api.RegisterRoutes(app, h, api.RequireToken(logger.L(), tokens), cfg.CORSOrigins)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[fhir-relay] running",
		"fhir_base_url", cfg.FHIRBaseURL,
		"port", cfg.Port)

	<-ctx.Done()
	stop()
	logg.Info("shutting down [fhir-relay]...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.ShutdownWithContext(shutdownCtx) //nolint:errcheck
}
