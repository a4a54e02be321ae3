package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/voyatech/ticketcheck/internal/telemetry"
	"github.com/voyatech/ticketcheck/internal/verify"
	"github.com/voyatech/ticketcheck/models"
)

// Client verifies flights against the Amadeus on-demand flight status API.
// It rate-limits outbound calls locally so bursts are queued here instead of
// drawing provider-side throttling penalties.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	maxRetries   int
	backoff      time.Duration
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *log.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type Config struct {
	ClientID      string
	ClientSecret  string
	BaseURL       string
	MaxRetries    int
	Backoff       time.Duration
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

func New(cfg Config, logger *log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://test.api.amadeus.com"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[VERIFY] ", log.LstdFlags)
	}
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries:   cfg.MaxRetries,
		backoff:      cfg.Backoff,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		logger:       logger,
	}
}

// Verify looks the flight up by carrier, number and date, then matches the
// scheduled endpoints against the claimed route. A definitive "not found" or
// route mismatch is a negative verdict, not an error; only transport trouble
// yields an inconclusive outcome.
func (c *Client) Verify(ctx context.Context, req verify.Request) models.VerificationOutcome {
	carrier, number, ok := splitFlightNumber(req.FlightNumber)
	if !ok {
		return verify.Inconclusive("flight number not splittable into carrier and number")
	}

	schedules, err := c.fetchSchedules(ctx, carrier, number, req.DepartureDate)
	if err != nil {
		c.logger.Printf("flight lookup failed for %s on %s: %v", req.FlightNumber, req.DepartureDate, err)
		return verify.Inconclusive(err.Error())
	}
	if len(schedules) == 0 {
		return verify.Rejected()
	}

	for _, s := range schedules {
		if s.matches(carrier, number, req.Departure, req.Arrival) {
			return verify.Confirmed(s.details())
		}
	}
	return verify.Rejected()
}

type schedule struct {
	FlightDesignator struct {
		CarrierCode  string `json:"carrierCode"`
		FlightNumber int    `json:"flightNumber"`
	} `json:"flightDesignator"`
	FlightPoints []struct {
		IATACode  string `json:"iataCode"`
		Departure *struct {
			Timings []struct {
				Qualifier string `json:"qualifier"`
				Value     string `json:"value"`
			} `json:"timings"`
		} `json:"departure"`
	} `json:"flightPoints"`
	Legs []struct {
		AircraftEquipment struct {
			AircraftType string `json:"aircraftType"`
		} `json:"aircraftEquipment"`
	} `json:"legs"`
}

func (s schedule) matches(carrier, number, departure, arrival string) bool {
	if s.FlightDesignator.CarrierCode != carrier {
		return false
	}
	if fmt.Sprintf("%d", s.FlightDesignator.FlightNumber) != strings.TrimLeft(number, "0") && fmt.Sprintf("%d", s.FlightDesignator.FlightNumber) != number {
		return false
	}
	if len(s.FlightPoints) < 2 {
		return false
	}
	return s.FlightPoints[0].IATACode == departure && s.FlightPoints[len(s.FlightPoints)-1].IATACode == arrival
}

// details extracts only what the backend actually returned.
func (s schedule) details() map[string]interface{} {
	d := map[string]interface{}{
		"carrier_code":  s.FlightDesignator.CarrierCode,
		"flight_number": s.FlightDesignator.FlightNumber,
		"departure":     map[string]interface{}{"iata_code": s.FlightPoints[0].IATACode},
		"arrival":       map[string]interface{}{"iata_code": s.FlightPoints[len(s.FlightPoints)-1].IATACode},
	}
	if dep := s.FlightPoints[0].Departure; dep != nil && len(dep.Timings) > 0 {
		d["scheduled_departure"] = dep.Timings[0].Value
	}
	if len(s.Legs) > 0 && s.Legs[0].AircraftEquipment.AircraftType != "" {
		d["aircraft"] = s.Legs[0].AircraftEquipment.AircraftType
	}
	return d
}

func (c *Client) fetchSchedules(ctx context.Context, carrier, number, date string) ([]schedule, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			telemetry.VerifierRetriesTotal.Inc()
			select {
			case <-time.After(c.backoff * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		schedules, retriable, err := c.fetchOnce(ctx, carrier, number, date)
		if err == nil {
			return schedules, nil
		}
		lastErr = err
		if !retriable {
			break
		}
	}
	return nil, fmt.Errorf("flight schedule lookup exhausted retries: %w", lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, carrier, number, date string) ([]schedule, bool, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, true, err
	}

	params := url.Values{}
	params.Set("carrierCode", carrier)
	params.Set("flightNumber", number)
	params.Set("scheduledDepartureDate", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/schedule/flights?"+params.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var out struct {
			Data []schedule `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, false, fmt.Errorf("decoding schedule response: %w", err)
		}
		return out.Data, false, nil
	case resp.StatusCode == http.StatusNotFound:
		// The API reports unknown flights with an empty data array, but some
		// gateways surface 404 instead; both are definitive negatives.
		return nil, false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		// Token may have been revoked early; drop it and retry.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return nil, true, fmt.Errorf("amadeus auth rejected (status 401)")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, true, fmt.Errorf("amadeus status %d: %s", resp.StatusCode, string(b))
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, false, fmt.Errorf("amadeus status %d: %s", resp.StatusCode, string(b))
	}
}

// token returns a cached OAuth2 client-credentials token, refreshing when it
// is within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("amadeus token status %d: %s", resp.StatusCode, string(b))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// splitFlightNumber separates "AF123" into carrier and numeric part.
func splitFlightNumber(fn string) (carrier, number string, ok bool) {
	if len(fn) < 3 {
		return "", "", false
	}
	carrier, number = fn[:2], fn[2:]
	for _, r := range number {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return carrier, number, true
}
