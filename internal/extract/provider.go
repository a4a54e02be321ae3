package extract

import (
	"context"
	"errors"
	"os"
	"sync/atomic"

	"github.com/voyatech/ticketcheck/config"
	"github.com/voyatech/ticketcheck/internal/extract/anthropic"
	"github.com/voyatech/ticketcheck/models"
)

// NewProvider creates a recognition provider from configuration.
func NewProvider(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("anthropic api key not set (provider.api_key or ANTHROPIC_API_KEY)")
		}
		return anthropic.New(apiKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.MaxRetries, cfg.Timeout), nil
	case "fixed":
		return &Fixed{Ticket: models.ExtractedTicket{}}, nil
	default:
		return nil, errors.New("unsupported extraction provider: " + cfg.Type)
	}
}

// Fixed is a deterministic provider returning a canned ticket (or error).
// It exists so the pipeline can be exercised without network access.
type Fixed struct {
	ProviderName string
	Ticket       models.ExtractedTicket
	Err          error

	calls atomic.Int64
}

func (f *Fixed) Name() string {
	if f.ProviderName != "" {
		return f.ProviderName
	}
	return "fixed"
}

func (f *Fixed) Extract(_ context.Context, _ models.Document) (models.ExtractedTicket, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return models.ExtractedTicket{}, f.Err
	}
	return f.Ticket, nil
}

// Calls reports how many times Extract ran, for idempotence assertions.
func (f *Fixed) Calls() int64 { return f.calls.Load() }
