package validate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/voyatech/ticketcheck/models"
)

var (
	flightNumberRe  = regexp.MustCompile(`^[A-Z]{2}\d{1,4}$`)
	passengerNameRe = regexp.MustCompile(`^[A-Z]+/[A-Z][a-z]+$`)
	ticketNumberRe  = regexp.MustCompile(`^\d{3}-\d{10}$`)
	iataCodeRe      = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Engine applies a fixed, ordered rule set to an extracted ticket. It performs
// no I/O; every rule runs regardless of earlier failures, and each failing
// rule contributes exactly one error per violation, in rule order.
type Engine struct {
	futureHorizon time.Duration
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithFutureHorizon bounds how far ahead a departure date may lie.
func WithFutureHorizon(d time.Duration) Option {
	return func(e *Engine) { e.futureHorizon = d }
}

// WithClock overrides the validation clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		futureHorizon: 365 * 24 * time.Hour,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate runs every rule and returns the verdict with the ordered error
// list. An empty error list means the ticket is valid.
func (e *Engine) Validate(ticket models.ExtractedTicket) models.ValidationResult {
	errs := []string{}

	errs = append(errs, e.presenceErrors(ticket)...)
	errs = append(errs, e.passengerNameErrors(ticket)...)
	errs = append(errs, e.flightNumberErrors(ticket)...)
	errs = append(errs, e.dateErrors(ticket)...)
	errs = append(errs, e.ticketNumberErrors(ticket)...)
	errs = append(errs, e.locationErrors(ticket)...)
	errs = append(errs, e.routeErrors(ticket)...)
	errs = append(errs, e.connectionErrors(ticket)...)

	return models.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// Rule 1: required fields must be present. Absence is a nil pointer, never an
// empty string.
func (e *Engine) presenceErrors(t models.ExtractedTicket) []string {
	var errs []string
	if t.PassengerName == nil {
		errs = append(errs, "passenger name is missing")
	}
	if t.FlightNumber == nil {
		errs = append(errs, "flight number is missing")
	}
	if t.DepartureDate == nil {
		errs = append(errs, "departure date is missing")
	}
	if t.Departure == nil {
		errs = append(errs, "departure information is missing")
	}
	if t.Arrival == nil {
		errs = append(errs, "arrival information is missing")
	}
	if t.TicketNumber == nil {
		errs = append(errs, "ticket number is missing")
	}
	return errs
}

// Rule 2: passenger name must be LASTNAME/Firstname.
func (e *Engine) passengerNameErrors(t models.ExtractedTicket) []string {
	if t.PassengerName == nil {
		return nil
	}
	if !passengerNameRe.MatchString(*t.PassengerName) {
		return []string{"passenger name format is invalid (expected LASTNAME/Firstname)"}
	}
	return nil
}

// Rule 3: flight number is a 2-letter carrier prefix plus 1-4 digits.
func (e *Engine) flightNumberErrors(t models.ExtractedTicket) []string {
	if t.FlightNumber == nil {
		return nil
	}
	if !flightNumberRe.MatchString(*t.FlightNumber) {
		return []string{"flight number format is invalid (expected carrier code plus 1-4 digits)"}
	}
	return nil
}

// Rule 4: departure date must parse, must not be in the past, and must not be
// unreasonably far in the future. An expired ticket is a validation error,
// not a fatal one.
func (e *Engine) dateErrors(t models.ExtractedTicket) []string {
	if t.DepartureDate == nil {
		return nil
	}
	date, err := time.Parse("2006-01-02", *t.DepartureDate)
	if err != nil {
		return []string{"departure date format is invalid (expected YYYY-MM-DD)"}
	}
	today := e.now().Truncate(24 * time.Hour)
	if date.Before(today) {
		return []string{"departure date is in the past"}
	}
	if e.futureHorizon > 0 && date.After(today.Add(e.futureHorizon)) {
		return []string{fmt.Sprintf("departure date is more than %s in the future", horizonLabel(e.futureHorizon))}
	}
	return nil
}

// Rule 5: ticket number must be 3 digits, a hyphen, and 10 digits.
func (e *Engine) ticketNumberErrors(t models.ExtractedTicket) []string {
	if t.TicketNumber == nil {
		return nil
	}
	if !ticketNumberRe.MatchString(*t.TicketNumber) {
		return []string{"ticket number format is invalid (expected NNN-NNNNNNNNNN)"}
	}
	return nil
}

// Rule 6: departure and arrival must each carry a valid 3-letter uppercase
// IATA code.
func (e *Engine) locationErrors(t models.ExtractedTicket) []string {
	var errs []string
	if t.Departure != nil {
		if msg := iataError("departure", t.Departure); msg != "" {
			errs = append(errs, msg)
		}
	}
	if t.Arrival != nil {
		if msg := iataError("arrival", t.Arrival); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

// Rule 7: the route must connect two distinct airports.
func (e *Engine) routeErrors(t models.ExtractedTicket) []string {
	if t.Departure == nil || t.Arrival == nil {
		return nil
	}
	dep, arr := t.Departure.IATACode, t.Arrival.IATACode
	if dep == nil || arr == nil {
		return nil
	}
	if !iataCodeRe.MatchString(*dep) || !iataCodeRe.MatchString(*arr) {
		return nil
	}
	if *dep == *arr {
		return []string{"departure and arrival airports must differ"}
	}
	return nil
}

// Rule 8: every connection must itself carry a valid IATA code; one error per
// malformed entry.
func (e *Engine) connectionErrors(t models.ExtractedTicket) []string {
	var errs []string
	for i := range t.Connections {
		if msg := iataError(fmt.Sprintf("connection %d", i+1), &t.Connections[i]); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

func iataError(name string, loc *models.Location) string {
	if loc.IATACode == nil {
		return name + " IATA code is missing"
	}
	if !iataCodeRe.MatchString(*loc.IATACode) {
		return name + " IATA code is invalid (expected 3 uppercase letters)"
	}
	return ""
}

func horizonLabel(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 && d == time.Duration(days)*24*time.Hour {
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
