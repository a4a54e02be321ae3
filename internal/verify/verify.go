package verify

import (
	"context"

	"github.com/voyatech/ticketcheck/models"
)

// Request identifies the flight to cross-check against the external
// flight-data backend.
type Request struct {
	FlightNumber  string // carrier code + number, e.g. AF123
	DepartureDate string // YYYY-MM-DD
	Departure     string // IATA code
	Arrival       string // IATA code
}

// Verifier confirms that a claimed route exists upstream. Implementations own
// their retry, backoff and rate-limiting policy; failures are reported inside
// the outcome, never as a hard error, because an inconclusive verification
// must not abort a pipeline run.
type Verifier interface {
	Verify(ctx context.Context, req Request) models.VerificationOutcome
}

// Inconclusive builds the soft-failure outcome used when the backend could not
// be consulted: attempted, no verdict, reason attached.
func Inconclusive(reason string) models.VerificationOutcome {
	return models.VerificationOutcome{Attempted: true, Error: reason}
}

// Rejected is the definitive negative outcome: the backend answered and the
// route does not exist as claimed.
func Rejected() models.VerificationOutcome {
	return models.VerificationOutcome{Attempted: true, Verified: models.BoolPtr(false)}
}

// Confirmed is the positive outcome with optional schedule metadata.
func Confirmed(details map[string]interface{}) models.VerificationOutcome {
	return models.VerificationOutcome{Attempted: true, Verified: models.BoolPtr(true), Details: details}
}

// Fixed is a canned verifier for tests and offline deployments.
type Fixed struct {
	Outcome models.VerificationOutcome
	Calls   int
}

func (f *Fixed) Verify(_ context.Context, _ Request) models.VerificationOutcome {
	f.Calls++
	return f.Outcome
}
