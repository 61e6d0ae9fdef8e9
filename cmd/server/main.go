// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zapblast/zapblast-backend/internal/config"
	"github.com/zapblast/zapblast-backend/internal/handler"
	"github.com/zapblast/zapblast-backend/internal/logging"
	"github.com/zapblast/zapblast-backend/internal/provider"
	"github.com/zapblast/zapblast-backend/internal/queue"
	"github.com/zapblast/zapblast-backend/internal/service"
	"github.com/zapblast/zapblast-backend/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	sender := buildSender(cfg, log)
	log.Info().Str("provider", sender.Name()).Str("store", cfg.StoreDriver).Msg("starting")

	svcCfg := service.Config{
		SubmitBatchSize: cfg.SubmitBatchSize,
		RecoverPending:  cfg.RecoverPending && cfg.DispatchMode == "local",
	}

	var dispatcher service.Dispatcher
	var localQueue *queue.DispatchQueue

	switch cfg.DispatchMode {
	case "amqp":
		pub, err := queue.NewPublisher(cfg.AMQPURL, st, log)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp publisher init failed")
		}
		defer pub.Close()
		dispatcher = pub
	default:
		localQueue = queue.NewDispatchQueue(queue.Config{
			RatePerSecond: cfg.MessagesPerSecond,
			Concurrency:   cfg.SendConcurrency,
			MaxAttempts:   cfg.MaxAttempts,
			BackoffBase:   cfg.BackoffBase,
			SendTimeout:   cfg.SendTimeout,
		}, sender, st, log)
		dispatcher = localQueue
	}

	svc := service.NewCampaignService(svcCfg, st, dispatcher, sender, log)
	if localQueue != nil {
		localQueue.SetOnTerminal(svc.OnTerminal)
		if err := localQueue.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("dispatch queue start failed")
		}
		defer localQueue.Stop()
	}
	svc.Start(ctx)
	defer svc.Stop()

	h := &handler.Handler{
		Service:       svc,
		Store:         st,
		Sender:        sender,
		RatePerSecond: cfg.MessagesPerSecond,
		Log:           log,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == "postgres" {
		return store.NewPostgresStore(cfg.DatabaseURL)
	}
	return store.NewRedisStore(ctx, cfg.RedisURL)
}

// buildSender picks the delivery provider from configuration. With
// fallback enabled and both providers configured, the Cloud API backs
// up Evolution.
func buildSender(cfg config.Config, log zerolog.Logger) provider.Sender {
	var primary, secondary provider.Sender

	evolution := cfg.EvolutionAPIURL != ""
	cloud := cfg.WhatsAppAccessToken != "" && cfg.WhatsAppPhoneID != ""

	switch cfg.WhatsAppProvider {
	case "evolution":
		if evolution {
			primary = provider.NewEvolution(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance)
			if cloud {
				secondary = provider.NewCloudAPI(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneID)
			}
		}
	case "cloud":
		if cloud {
			primary = provider.NewCloudAPI(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneID)
			if evolution {
				secondary = provider.NewEvolution(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance)
			}
		}
	}

	if primary == nil {
		log.Warn().Msg("no provider credentials configured, using mock sender")
		return provider.NewMock(0.1, 100*time.Millisecond)
	}
	if cfg.FallbackEnabled && secondary != nil {
		return provider.NewFallback(log, primary, secondary)
	}
	return primary
}
