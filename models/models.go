package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by cache lookups when no entry exists for a fingerprint.
var ErrCacheMiss = errors.New("cache miss")

// ExtractionError is fatal to a pipeline run: the recognition provider could not
// produce a usable result. Validation failures are NOT extraction errors.
type ExtractionError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s): %s", e.Provider, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Document is one uploaded file handed to a recognition provider. Data is
// owned by the caller for the duration of one request and never mutated.
type Document struct {
	Data        []byte
	ContentType string
}

// Location is one endpoint of an itinerary. All fields are optional because the
// recognizer may not find them; nil means absent, which is distinct from "".
type Location struct {
	IATACode *string `json:"iata_code,omitempty"`
	City     *string `json:"city,omitempty"`
	Country  *string `json:"country,omitempty"`
	Terminal *string `json:"terminal,omitempty"`
}

// ExtractedTicket is the normalized output of a recognition provider.
type ExtractedTicket struct {
	PassengerName *string    `json:"passenger_name,omitempty"`
	FlightNumber  *string    `json:"flight_number,omitempty"`
	DepartureDate *string    `json:"departure_date,omitempty"` // YYYY-MM-DD when normalized
	Departure     *Location  `json:"departure,omitempty"`
	Arrival       *Location  `json:"arrival,omitempty"`
	TicketNumber  *string    `json:"ticket_number,omitempty"`
	Connections   []Location `json:"connections,omitempty"`
}

// ValidationResult is the verdict of the rule engine. Errors keeps rule
// evaluation order and is never deduplicated.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// VerificationOutcome reports the external flight cross-check.
// Verified is nil when verification was skipped or inconclusive.
type VerificationOutcome struct {
	Attempted bool                   `json:"attempted"`
	Verified  *bool                  `json:"verified,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// PipelineResult aggregates the three stages of one run.
type PipelineResult struct {
	Ticket       ExtractedTicket     `json:"extracted_info"`
	Validation   ValidationResult    `json:"validation"`
	Verification VerificationOutcome `json:"verification"`
}

// CacheEntry is the unit stored by a ContentCache.
type CacheEntry struct {
	Fingerprint string          `json:"fingerprint"`
	Ticket      ExtractedTicket `json:"ticket"`
	CreatedAt   time.Time       `json:"created_at"`
}

// String helpers for optional fields.

func StringPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }

// Deref returns the value of an optional string, or "" when absent.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
