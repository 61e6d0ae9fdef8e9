// cmd/sendtest/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zapblast/zapblast-backend/internal/config"
	"github.com/zapblast/zapblast-backend/internal/phone"
	"github.com/zapblast/zapblast-backend/internal/provider"
)

// One-shot provider smoke test:
//
//	go run ./cmd/sendtest -phone 11999999999 -message "hello"
func main() {
	rawPhone := flag.String("phone", "", "recipient phone number")
	message := flag.String("message", "Test message", "message text")
	flag.Parse()

	if *rawPhone == "" {
		fmt.Fprintln(os.Stderr, "usage: sendtest -phone <number> [-message <text>]")
		os.Exit(1)
	}

	canonical, err := phone.Normalize(*rawPhone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid phone %q: %v\n", *rawPhone, err)
		os.Exit(1)
	}

	cfg := config.Load()
	var sender provider.Sender
	switch cfg.WhatsAppProvider {
	case "evolution":
		sender = provider.NewEvolution(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance)
	case "cloud":
		sender = provider.NewCloudAPI(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneID)
	default:
		sender = provider.NewMock(0, 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SendTimeout)
	defer cancel()

	fmt.Printf("provider=%s phone=%s (%s)\n", sender.Name(), canonical, phone.Format(canonical))
	start := time.Now()
	deliveryID, err := sender.Send(ctx, canonical, *message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "send failed after %s: %v\n", time.Since(start).Round(time.Millisecond), err)
		os.Exit(1)
	}
	fmt.Printf("sent in %s, delivery id %s\n", time.Since(start).Round(time.Millisecond), deliveryID)
}
