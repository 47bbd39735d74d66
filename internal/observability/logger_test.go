package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestLoggerFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelInfo)
	t.Cleanup(func() { SetOutput(os.Stdout, slog.LevelInfo) })

	var handled bool
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LoggerFromContext(r.Context()).Info("hello")
		handled = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !handled {
		t.Fatal("handler not called")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["request_id"] == "" || entry["request_id"] == nil {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestLoggerFromContextWithoutRequestID(t *testing.T) {
	if LoggerFromContext(context.Background()) != Logger() {
		t.Fatal("expected the global logger")
	}
}
