package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIProviderEmbed(t *testing.T) {
	var gotInputs int
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotInputs = len(req.Input)
		resp := apiResponse{}
		for range req.Input {
			resp.Data = append(resp.Data, apiEmbeddingData{Embedding: []float32{0.1, 0.2, 0.3}})
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(Config{
		Endpoint: srv.URL,
		Model:    "test-model",
	})

	vectors, err := p.Embed(context.Background(), []string{"expense policy", "roof claim"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotInputs != 2 {
		t.Errorf("server saw %d inputs, want 2", gotInputs)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if len(vectors[0]) != 3 {
		t.Fatalf("got dimension %d, want 3", len(vectors[0]))
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want observed 3", p.Dimension())
	}
}

func TestAPIProviderEmbed_Batching(t *testing.T) {
	var requests int
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req apiRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := apiResponse{}
		for range req.Input {
			resp.Data = append(resp.Data, apiEmbeddingData{Embedding: []float32{0.5}})
		}
		json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(Config{Endpoint: srv.URL, Model: "test-model"})

	texts := make([]string, apiBatchSize+1)
	for i := range texts {
		texts[i] = "doc"
	}
	vectors, err := p.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	if requests != 2 {
		t.Errorf("got %d requests, want 2", requests)
	}
}

func TestAPIProviderEmbed_Empty(t *testing.T) {
	p := NewAPIProvider(Config{
		Endpoint:  "http://unused",
		Model:     "test-model",
		Dimension: 128,
	})

	vectors, err := p.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
}

func TestLocalProviderEmbed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(localResponse{Embedding: []float32{0.4, 0.5}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewLocalProvider(Config{Endpoint: srv.URL, Model: "test-model"})

	vectors, err := p.Embed(context.Background(), []string{"lab sample", "loan grade"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if p.Dimension() != 2 {
		t.Errorf("got dimension %d, want observed 2", p.Dimension())
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider(Config{Provider: "api"}); err != nil {
		t.Errorf("api: unexpected error: %v", err)
	}
	if _, err := NewProvider(Config{Provider: "local"}); err != nil {
		t.Errorf("local: unexpected error: %v", err)
	}
	if _, err := NewProvider(Config{Provider: "quantum"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestProviderDimension_Fallback(t *testing.T) {
	p := NewAPIProvider(Config{
		Endpoint:  "http://unused",
		Model:     "test-model",
		Dimension: 256,
	})

	if d := p.Dimension(); d != 256 {
		t.Errorf("got dimension %d, want configured default 256", d)
	}
}
