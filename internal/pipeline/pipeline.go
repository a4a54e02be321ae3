package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/voyatech/ticketcheck/internal/extract"
	"github.com/voyatech/ticketcheck/internal/telemetry"
	"github.com/voyatech/ticketcheck/internal/validate"
	"github.com/voyatech/ticketcheck/internal/verify"
	"github.com/voyatech/ticketcheck/models"
)

// Options control one pipeline run.
type Options struct {
	// VerifyFlight cross-checks the itinerary against the flight-data backend
	// when validation passes.
	VerifyFlight bool
	// ForceCacheBypass skips the extraction cache lookup for this call without
	// clearing it for others.
	ForceCacheBypass bool
}

// Pipeline composes extraction, validation and optional verification.
// Extraction is the only stage whose failure aborts a run; validation always
// produces a verdict and verification degrades to an inconclusive outcome.
type Pipeline struct {
	extractor *extract.Extractor
	engine    *validate.Engine
	verifier  verify.Verifier
	logger    *log.Logger
}

func New(extractor *extract.Extractor, engine *validate.Engine, verifier verify.Verifier, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPE] ", log.LstdFlags)
	}
	return &Pipeline{extractor: extractor, engine: engine, verifier: verifier, logger: logger}
}

// Run executes the pipeline for one document. The returned error is always an
// extraction-stage failure (*models.ExtractionError or a context error);
// validation failures and inconclusive verifications are reported inside the
// result.
func (p *Pipeline) Run(ctx context.Context, doc models.Document, opts Options) (models.PipelineResult, error) {
	start := time.Now()
	ticket, err := p.extractor.Extract(ctx, doc, extract.Options{BypassCache: opts.ForceCacheBypass})
	telemetry.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ValidationsTotal.WithLabelValues("failed").Inc()
		return models.PipelineResult{}, err
	}

	result := models.PipelineResult{
		Ticket:     ticket,
		Validation: p.engine.Validate(ticket),
	}
	if result.Validation.IsValid {
		telemetry.ValidationsTotal.WithLabelValues("valid").Inc()
	} else {
		telemetry.ValidationsTotal.WithLabelValues("invalid").Inc()
	}

	// Verification only runs on request and only for tickets that already
	// passed validation; checking an invalid extraction wastes quota.
	if opts.VerifyFlight && result.Validation.IsValid && p.verifier != nil {
		vstart := time.Now()
		result.Verification = p.verifier.Verify(ctx, verify.Request{
			FlightNumber:  models.Deref(ticket.FlightNumber),
			DepartureDate: models.Deref(ticket.DepartureDate),
			Departure:     models.Deref(ticket.Departure.IATACode),
			Arrival:       models.Deref(ticket.Arrival.IATACode),
		})
		telemetry.VerificationDuration.Observe(time.Since(vstart).Seconds())

		switch {
		case result.Verification.Verified == nil:
			telemetry.VerificationsTotal.WithLabelValues("inconclusive").Inc()
			p.logger.Printf("verification inconclusive for %s: %s", models.Deref(ticket.FlightNumber), result.Verification.Error)
		case *result.Verification.Verified:
			telemetry.VerificationsTotal.WithLabelValues("verified").Inc()
		default:
			telemetry.VerificationsTotal.WithLabelValues("rejected").Inc()
		}
	}

	return result, nil
}
