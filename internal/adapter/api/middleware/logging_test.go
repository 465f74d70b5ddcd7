package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"Success Logs At Debug", http.StatusOK, "level=DEBUG"},
		{"Client Error Logs At Warn", http.StatusNotFound, "level=WARN"},
		{"Server Error Logs At Error", http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("hello"))
			})

			rr := httptest.NewRecorder()
			Logging(logger)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/last", nil))

			out := buf.String()
			if rr.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rr.Code)
			}
			for _, want := range []string{tt.wantLevel, "path=/runs/last", "bytes=5", "component=http"} {
				if !strings.Contains(out, want) {
					t.Errorf("log line %q missing %q", out, want)
				}
			}
		})
	}
}
