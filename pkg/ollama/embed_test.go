package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestEmbedBatch(t *testing.T) {
	var gotReq embedReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(embedResp{Embeddings: [][]float64{{0.1, 0.2}, {0.3, 0.4}}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "nomic-embed-text")
	vecs, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}

	if gotReq.Model != "nomic-embed-text" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if !reflect.DeepEqual(gotReq.Input, []string{"first", "second"}) {
		t.Errorf("input = %v", gotReq.Input)
	}
	want := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
	if !reflect.DeepEqual(vecs, want) {
		t.Errorf("vecs = %v, want %v", vecs, want)
	}
}

func TestEmbedSingleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResp{Embeddings: [][]float64{{1, 2, 3}}})
	}))
	defer srv.Close()

	vec, err := NewEmbedClient(srv.URL, "m").Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vec, []float32{1, 2, 3}) {
		t.Fatalf("vec = %v", vec)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := NewEmbedClient("http://unused", "m")
	vecs, err := c.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("got (%v, %v)", vecs, err)
	}
}

func TestEmbedBatchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewEmbedClient(srv.URL, "m").EmbedBatch(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResp{Embeddings: [][]float64{{1}}})
	}))
	defer srv.Close()

	if _, err := NewEmbedClient(srv.URL, "m").EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected mismatch error")
	}
}
