package amadeus

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voyatech/ticketcheck/internal/verify"
)

var testRequest = verify.Request{
	FlightNumber:  "AF123",
	DepartureDate: "2026-07-29",
	Departure:     "CDG",
	Arrival:       "JFK",
}

func scheduleJSON(carrier string, number int, points ...string) map[string]any {
	fp := make([]map[string]any, 0, len(points))
	for _, p := range points {
		fp = append(fp, map[string]any{"iataCode": p})
	}
	fp[0]["departure"] = map[string]any{
		"timings": []map[string]any{{"qualifier": "STD", "value": "2026-07-29T10:35"}},
	}
	return map[string]any{
		"flightDesignator": map[string]any{"carrierCode": carrier, "flightNumber": number},
		"flightPoints":     fp,
		"legs":             []map[string]any{{"aircraftEquipment": map[string]any{"aircraftType": "77W"}}},
	}
}

// fakeAmadeus serves the token endpoint plus a caller-supplied schedule
// handler.
func fakeAmadeus(t *testing.T, tokenCalls *int32, schedules http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/security/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenCalls != nil {
			atomic.AddInt32(tokenCalls, 1)
		}
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		if form.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type %q", form.Get("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 1799})
	})
	mux.HandleFunc("/v2/schedule/flights", schedules)
	return httptest.NewServer(mux)
}

func testClient(baseURL string) *Client {
	return New(Config{
		ClientID:      "id",
		ClientSecret:  "secret",
		BaseURL:       baseURL,
		MaxRetries:    2,
		Backoff:       time.Millisecond,
		RatePerSecond: 1000,
		RateBurst:     1000,
	}, log.New(io.Discard, "", 0))
}

func TestVerifyConfirmedOnRouteMatch(t *testing.T) {
	srv := fakeAmadeus(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("carrierCode") != "AF" || q.Get("flightNumber") != "123" || q.Get("scheduledDepartureDate") != "2026-07-29" {
			t.Errorf("unexpected query %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []any{scheduleJSON("AF", 123, "CDG", "JFK")}})
	})
	defer srv.Close()

	out := testClient(srv.URL).Verify(context.Background(), testRequest)
	if !out.Attempted || out.Verified == nil || !*out.Verified {
		t.Fatalf("expected confirmed outcome, got %+v", out)
	}
	if out.Details["aircraft"] != "77W" {
		t.Errorf("details missing aircraft: %v", out.Details)
	}
	if out.Details["scheduled_departure"] != "2026-07-29T10:35" {
		t.Errorf("details missing scheduled departure: %v", out.Details)
	}
}

func TestVerifyRejectedWhenNoSchedules(t *testing.T) {
	srv := fakeAmadeus(t, nil, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})
	defer srv.Close()

	out := testClient(srv.URL).Verify(context.Background(), testRequest)
	if out.Verified == nil || *out.Verified {
		t.Fatalf("expected rejected outcome, got %+v", out)
	}
}

func TestVerifyRejectedOnRouteMismatch(t *testing.T) {
	srv := fakeAmadeus(t, nil, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{scheduleJSON("AF", 123, "CDG", "LHR")}})
	})
	defer srv.Close()

	out := testClient(srv.URL).Verify(context.Background(), testRequest)
	if out.Verified == nil || *out.Verified {
		t.Fatalf("expected rejected outcome on route mismatch, got %+v", out)
	}
}

func TestVerifyRejectedOn404(t *testing.T) {
	srv := fakeAmadeus(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	out := testClient(srv.URL).Verify(context.Background(), testRequest)
	if out.Verified == nil || *out.Verified {
		t.Fatalf("expected rejected outcome on 404, got %+v", out)
	}
}

func TestVerifyInconclusiveAfterRetriesExhausted(t *testing.T) {
	var calls int32
	srv := fakeAmadeus(t, nil, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	out := testClient(srv.URL).Verify(context.Background(), testRequest)
	if !out.Attempted {
		t.Fatalf("outcome must record the attempt")
	}
	if out.Verified != nil {
		t.Fatalf("expected inconclusive outcome, got verified=%v", *out.Verified)
	}
	if out.Error == "" {
		t.Fatalf("inconclusive outcome must carry a reason")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestVerifyRecoversAfterTransientError(t *testing.T) {
	var calls int32
	srv := fakeAmadeus(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []any{scheduleJSON("AF", 123, "CDG", "JFK")}})
	})
	defer srv.Close()

	out := testClient(srv.URL).Verify(context.Background(), testRequest)
	if out.Verified == nil || !*out.Verified {
		t.Fatalf("expected confirmed outcome after retry, got %+v", out)
	}
}

func TestVerifyTokenIsCachedAcrossCalls(t *testing.T) {
	var tokenCalls int32
	srv := fakeAmadeus(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})
	defer srv.Close()

	c := testClient(srv.URL)
	c.Verify(context.Background(), testRequest)
	c.Verify(context.Background(), testRequest)
	if n := atomic.LoadInt32(&tokenCalls); n != 1 {
		t.Errorf("expected a single token fetch, got %d", n)
	}
}

func TestVerifyInconclusiveOnMalformedFlightNumber(t *testing.T) {
	c := testClient("http://127.0.0.1:1") // must never be dialed
	out := c.Verify(context.Background(), verify.Request{FlightNumber: "A1", DepartureDate: "2026-07-29"})
	if out.Verified != nil {
		t.Fatalf("expected inconclusive outcome, got %+v", out)
	}
}

func TestScheduleMatchesLeadingZeroNumbers(t *testing.T) {
	raw, _ := json.Marshal(scheduleJSON("VY", 15, "BCN", "ORY"))
	var s schedule
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decoding schedule fixture: %v", err)
	}

	if !s.matches("VY", "0015", "BCN", "ORY") {
		t.Errorf("expected leading-zero flight number to match")
	}
	if s.matches("VY", "15", "BCN", "MAD") {
		t.Errorf("expected arrival mismatch to fail")
	}
}

func TestSplitFlightNumber(t *testing.T) {
	cases := []struct {
		in      string
		carrier string
		number  string
		ok      bool
	}{
		{"AF123", "AF", "123", true},
		{"VY1511", "VY", "1511", true},
		{"AF", "", "", false},
		{"AFX23", "", "", false},
	}
	for _, tc := range cases {
		carrier, number, ok := splitFlightNumber(tc.in)
		if carrier != tc.carrier || number != tc.number || ok != tc.ok {
			t.Errorf("splitFlightNumber(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.in, carrier, number, ok, tc.carrier, tc.number, tc.ok)
		}
	}
}

var _ verify.Verifier = (*Client)(nil)
