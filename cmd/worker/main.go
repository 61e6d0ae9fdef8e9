// cmd/worker/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/zapblast/zapblast-backend/internal/config"
	"github.com/zapblast/zapblast-backend/internal/logging"
	"github.com/zapblast/zapblast-backend/internal/provider"
	"github.com/zapblast/zapblast-backend/internal/queue"
	"github.com/zapblast/zapblast-backend/internal/service"
	"github.com/zapblast/zapblast-backend/internal/store"
)

// The worker consumes dispatch jobs from RabbitMQ and sends them through
// a local rate-limited queue. Run it alongside a server started with
// DISPATCH_MODE=amqp.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel).With().Str("app", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	var err error
	if cfg.StoreDriver == "postgres" {
		st, err = store.NewPostgresStore(cfg.DatabaseURL)
	} else {
		st, err = store.NewRedisStore(ctx, cfg.RedisURL)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	sender := pickSender(cfg)
	log.Info().Str("provider", sender.Name()).Msg("provider selected")

	dispatch := queue.NewDispatchQueue(queue.Config{
		RatePerSecond: cfg.MessagesPerSecond,
		Concurrency:   cfg.SendConcurrency,
		MaxAttempts:   cfg.MaxAttempts,
		BackoffBase:   cfg.BackoffBase,
		SendTimeout:   cfg.SendTimeout,
	}, sender, st, log)

	// Completion tracking runs here too: the worker holds the live
	// counters in amqp mode.
	svc := service.NewCampaignService(service.Config{}, st, dispatch, sender, log)
	dispatch.SetOnTerminal(svc.OnTerminal)

	if err := dispatch.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("dispatch queue start failed")
	}
	defer dispatch.Stop()

	consumer, err := queue.NewConsumer(cfg.AMQPURL, dispatch, log)
	if err != nil {
		log.Fatal().Err(err).Msg("amqp consumer init failed")
	}
	defer consumer.Close()

	log.Info().Msg("worker running")
	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
	}
}

func pickSender(cfg config.Config) provider.Sender {
	switch cfg.WhatsAppProvider {
	case "evolution":
		if cfg.EvolutionAPIURL != "" {
			return provider.NewEvolution(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance)
		}
	case "cloud":
		if cfg.WhatsAppAccessToken != "" {
			return provider.NewCloudAPI(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneID)
		}
	}
	return provider.NewMock(0.1, 100*time.Millisecond)
}
