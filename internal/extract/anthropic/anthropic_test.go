package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voyatech/ticketcheck/models"
)

func messagesResponse(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}
}

func testDoc() models.Document {
	return models.Document{Data: []byte("fake-image-bytes"), ContentType: "image/jpeg"}
}

func TestExtractParsesFencedJSON(t *testing.T) {
	var gotReq request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Errorf("missing anthropic-version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(messagesResponse("```json\n" + `{
			"passenger_name": "DOE/John",
			"flight_number": "AF123",
			"departure": {"iata_code": "cdg", "city": "Paris", "country": "France", "terminal": "2E"},
			"arrival": {"iata_code": "JFK", "city": "New York", "country": "USA", "terminal": ""},
			"departure_date": "29JUL2027",
			"ticket_number": "057-1234567890",
			"connections": []
		}` + "\n```"))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, "claude-3-opus-20240229", 1024, 1, 10*time.Second)
	ticket, err := c.Extract(context.Background(), testDoc())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if models.Deref(ticket.PassengerName) != "DOE/John" {
		t.Errorf("passenger name = %q", models.Deref(ticket.PassengerName))
	}
	if ticket.Departure == nil || models.Deref(ticket.Departure.IATACode) != "CDG" {
		t.Errorf("departure IATA code not upcased: %+v", ticket.Departure)
	}
	if ticket.Arrival == nil || ticket.Arrival.Terminal != nil {
		t.Errorf("empty terminal must be absent, got %+v", ticket.Arrival)
	}
	if models.Deref(ticket.DepartureDate) != "2027-07-29" {
		t.Errorf("departure date not normalized: %q", models.Deref(ticket.DepartureDate))
	}

	if len(gotReq.Messages) != 1 || len(gotReq.Messages[0].Content) != 2 {
		t.Fatalf("unexpected request shape: %+v", gotReq)
	}
	block := gotReq.Messages[0].Content[0]
	if block.Type != "image" || block.Source == nil || block.Source.MediaType != "image/jpeg" {
		t.Errorf("unexpected document block: %+v", block)
	}
}

func TestExtractPDFUsesDocumentBlock(t *testing.T) {
	var gotReq request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(messagesResponse(`{"flight_number": "AF123"}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, "claude-3-opus-20240229", 1024, 1, 10*time.Second)
	if _, err := c.Extract(context.Background(), models.Document{Data: []byte("%PDF-1.4"), ContentType: "application/pdf"}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	block := gotReq.Messages[0].Content[0]
	if block.Type != "document" {
		t.Errorf("expected document block for PDF, got %q", block.Type)
	}
}

func TestExtractRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(messagesResponse(`{"flight_number": "AF123"}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, "claude-3-opus-20240229", 1024, 2, 10*time.Second)
	ticket, err := c.Extract(context.Background(), testDoc())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if models.Deref(ticket.FlightNumber) != "AF123" {
		t.Errorf("unexpected ticket: %+v", ticket)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 calls, got %d", n)
	}
}

func TestExtractDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, "claude-3-opus-20240229", 1024, 3, 10*time.Second)
	_, err := c.Extract(context.Background(), testDoc())
	var extErr *models.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *models.ExtractionError, got %v", err)
	}
	if extErr.Provider != "anthropic" {
		t.Errorf("provider = %q", extErr.Provider)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single call for a 400, got %d", n)
	}
}

func TestExtractUnparseableReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(messagesResponse("I could not read the ticket, sorry."))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, "claude-3-opus-20240229", 1024, 1, 10*time.Second)
	_, err := c.Extract(context.Background(), testDoc())
	var extErr *models.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *models.ExtractionError, got %v", err)
	}
	if extErr.Reason != "unparseable response" {
		t.Errorf("reason = %q", extErr.Reason)
	}
}

func TestParseResponseEmptyContent(t *testing.T) {
	if _, err := parseResponse(&response{}); err == nil {
		t.Fatalf("expected error for empty content")
	}
}
