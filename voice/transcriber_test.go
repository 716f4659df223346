package voice

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gsk_test" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("model"); got != DefaultModel {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("response_format"); got != "text" {
			t.Errorf("response_format = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "voice.ogg" || string(data) != "OggS" {
			t.Errorf("file = %s %q", hdr.Filename, data)
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  Remind me to water the plants.\n"))
	}))
	defer srv.Close()

	tr, err := New(Options{APIKey: "gsk_test", BaseURL: srv.URL}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tr.Transcribe(context.Background(), []byte("OggS"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "Remind me to water the plants." {
		t.Errorf("got %q", got)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	tr, _ := New(Options{APIKey: "bad", BaseURL: srv.URL}, zerolog.Nop())
	if _, err := tr.Transcribe(context.Background(), []byte("OggS")); err == nil {
		t.Error("expected error for 401")
	}
	if _, err := tr.Transcribe(context.Background(), nil); err == nil {
		t.Error("expected error for empty audio")
	}
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Error("expected error without API key")
	}
}
