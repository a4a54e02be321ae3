package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/voyatech/ticketcheck/models"
)

const defaultBaseURL = "https://api.anthropic.com"

const systemPrompt = `You are an expert at extracting flight ticket information from images, with extensive knowledge of world geography.
Carefully analyze the provided flight ticket or boarding pass and extract:
1. Passenger name (in LASTNAME/Firstname format)
2. Flight number (airline code + number)
3. Departure information: IATA code, city name exactly as shown, country deduced from the city, terminal if shown
4. Arrival information (same rules as departure)
5. Departure date EXACTLY as printed on the ticket (e.g. "29JUL" or "29/07"); never modify or assume the year
6. Ticket or boarding pass number
7. Any connection information

Extract information exactly as shown; only include information you are certain about.
Return ONLY a JSON object in this shape:
{
  "passenger_name": "LASTNAME/Firstname",
  "flight_number": "XX1234",
  "departure": {"iata_code": "XXX", "city": "...", "country": "...", "terminal": "..."},
  "arrival": {"iata_code": "XXX", "city": "...", "country": "...", "terminal": "..."},
  "departure_date": "as shown on ticket",
  "ticket_number": "XXXXX",
  "connections": []
}`

// client implements the extraction provider using the Anthropic messages API.
type client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	maxRetries int
	httpClient *http.Client
	now        func() time.Time
}

// New creates an Anthropic-backed extraction provider.
func New(apiKey, baseURL, model string, maxTokens, maxRetries int, timeout time.Duration) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxTokens:  maxTokens,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (c *client) Name() string { return "anthropic" }

type request struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []reqMessage `json:"messages"`
}

type reqMessage struct {
	Role    string     `json:"role"`
	Content []reqBlock `json:"content"`
}

type reqBlock struct {
	Type   string     `json:"type"`
	Text   string     `json:"text,omitempty"`
	Source *reqSource `json:"source,omitempty"`
}

type reqSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Extract sends the document to the messages API and normalizes the reply.
func (c *client) Extract(ctx context.Context, doc models.Document) (models.ExtractedTicket, error) {
	block := reqBlock{
		Type: "image",
		Source: &reqSource{
			Type:      "base64",
			MediaType: doc.ContentType,
			Data:      base64.StdEncoding.EncodeToString(doc.Data),
		},
	}
	if doc.ContentType == "application/pdf" {
		block.Type = "document"
	}
	body := request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []reqMessage{{
			Role: "user",
			Content: []reqBlock{
				block,
				{Type: "text", Text: "Extract the flight ticket information from this document. Keep dates exactly as printed. Return ONLY the JSON object."},
			},
		}},
	}

	resp, err := c.call(ctx, body)
	if err != nil {
		return models.ExtractedTicket{}, err
	}
	ticket, err := parseResponse(resp)
	if err != nil {
		return models.ExtractedTicket{}, &models.ExtractionError{Provider: c.Name(), Reason: "unparseable response", Err: err}
	}
	if ticket.DepartureDate != nil {
		if normalized, ok := NormalizeDate(*ticket.DepartureDate, c.now()); ok {
			ticket.DepartureDate = &normalized
		}
	}
	return ticket, nil
}

func (c *client) call(ctx context.Context, body request) (*response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1))*time.Second + time.Duration(rand.Int63n(int64(time.Second)))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		out, retriable, err := c.doOnce(ctx, payload)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retriable {
			break
		}
	}
	return nil, &models.ExtractionError{Provider: c.Name(), Reason: "provider unavailable", Err: lastErr}
}

func (c *client) doOnce(ctx context.Context, payload []byte) (*response, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var out response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, false, err
		}
		return &out, false, nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	retriable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return nil, retriable, fmt.Errorf("anthropic API status %d: %s", resp.StatusCode, string(b))
}

func parseResponse(resp *response) (models.ExtractedTicket, error) {
	if len(resp.Content) == 0 {
		return models.ExtractedTicket{}, fmt.Errorf("empty response content")
	}
	raw := strings.TrimSpace(resp.Content[0].Text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var wire wireTicket
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return models.ExtractedTicket{}, fmt.Errorf("decoding extraction JSON: %w", err)
	}
	return wire.normalize(), nil
}

type wireLocation struct {
	IATACode string `json:"iata_code"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Terminal string `json:"terminal"`
}

type wireTicket struct {
	PassengerName string         `json:"passenger_name"`
	FlightNumber  string         `json:"flight_number"`
	DepartureDate string         `json:"departure_date"`
	TicketNumber  string         `json:"ticket_number"`
	Departure     *wireLocation  `json:"departure"`
	Arrival       *wireLocation  `json:"arrival"`
	Connections   []wireLocation `json:"connections"`
}

// normalize maps wire fields onto the model, turning empty strings into absent
// values so the rule engine never sees sentinel empties.
func (w wireTicket) normalize() models.ExtractedTicket {
	t := models.ExtractedTicket{
		PassengerName: optional(w.PassengerName),
		FlightNumber:  optional(w.FlightNumber),
		DepartureDate: optional(w.DepartureDate),
		TicketNumber:  optional(w.TicketNumber),
		Departure:     w.Departure.normalize(),
		Arrival:       w.Arrival.normalize(),
	}
	for _, c := range w.Connections {
		if loc := c.normalize(); loc != nil {
			t.Connections = append(t.Connections, *loc)
		}
	}
	return t
}

func (w *wireLocation) normalize() *models.Location {
	if w == nil {
		return nil
	}
	loc := models.Location{
		IATACode: optional(strings.ToUpper(strings.TrimSpace(w.IATACode))),
		City:     optional(w.City),
		Country:  optional(w.Country),
		Terminal: optional(w.Terminal),
	}
	if loc.IATACode == nil && loc.City == nil && loc.Country == nil && loc.Terminal == nil {
		return nil
	}
	return &loc
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
