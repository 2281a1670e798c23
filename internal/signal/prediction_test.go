package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stock-bot-lab/internal/domain"
)

func testInput() Input {
	ts := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	var bars []domain.Bar
	for i := 0; i < 30; i++ {
		p := 100 + float64(i)
		bars = append(bars, domain.Bar{Symbol: "AAPL", Timestamp: ts.Add(time.Duration(i-29) * time.Minute), Open: p, High: p, Low: p, Close: p})
	}
	return Input{Symbol: "AAPL", Timestamp: ts, Price: 129, History: bars}
}

func TestPredictionSource_Signal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Symbol != "AAPL" {
			t.Errorf("expected symbol AAPL, got %s", req.Symbol)
		}
		if _, ok := req.Features["rsi_14"]; !ok {
			t.Errorf("expected rsi_14 feature")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(PredictResponse{Direction: "Bullish", Confidence: 0.8, Value: 0.012})
	}))
	defer server.Close()

	src := NewPredictionSource(domain.SourceConfig{ID: "ml", Kind: domain.SourceKindML}, server.URL, NewPredictionClient())
	snap, err := src.Signal(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if snap == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if snap.Direction != domain.DirectionBullish {
		t.Errorf("expected bullish, got %s", snap.Direction)
	}
	if snap.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", snap.Confidence)
	}
	if snap.SourceID != "ml" || snap.Kind != domain.SourceKindML {
		t.Errorf("unexpected provenance %s/%s", snap.SourceID, snap.Kind)
	}
}

func TestPredictionClient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(PredictResponse{Direction: "bearish", Confidence: 0.4})
	}))
	defer server.Close()

	client := NewPredictionClient(WithRetryDelay(time.Millisecond), WithMaxRetries(3))
	resp, err := client.Predict(context.Background(), server.URL, PredictRequest{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if resp.Direction != "bearish" {
		t.Errorf("expected bearish, got %s", resp.Direction)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestPredictionClient_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewPredictionClient(WithRetryDelay(time.Millisecond), WithMaxRetries(1))
	if _, err := client.Predict(context.Background(), server.URL, PredictRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPredictionClient_NoContentIsAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := NewPredictionClient().Predict(context.Background(), server.URL, PredictRequest{})
	if err != nil || resp != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", resp, err)
	}
}
