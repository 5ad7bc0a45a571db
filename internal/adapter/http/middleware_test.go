package http

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// hijackableRecorder wraps httptest.ResponseRecorder to implement http.Hijacker.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, nil
}

func TestResponseWriterHijack(t *testing.T) {
	inner := &hijackableRecorder{httptest.NewRecorder()}
	rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

	if _, _, err := rw.Hijack(); err != nil {
		t.Fatalf("Hijack returned unexpected error: %v", err)
	}

	plain := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := plain.Hijack(); err == nil {
		t.Fatal("expected error when upstream does not implement Hijacker")
	}
}

func TestResponseWriterFlushAndUnwrap(t *testing.T) {
	inner := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

	if err := http.NewResponseController(rw).Flush(); err != nil {
		t.Fatalf("Flush through ResponseController: %v", err)
	}
	if !inner.Flushed {
		t.Fatal("expected inner ResponseRecorder to be flushed")
	}
	if rw.Unwrap() != inner {
		t.Fatal("Unwrap should return the wrapped writer")
	}
}

func TestResponseWriterCountsBytes(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _ = rw.Write([]byte("data: 1\n\n"))
	if rw.bytes != 9 {
		t.Fatalf("bytes = %d, want 9", rw.bytes)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		method     string
		wantStatus int
		wantCreds  string
	}{
		{"wildcard get", "*", http.MethodGet, http.StatusOK, ""},
		{"fixed origin allows credentials", "https://ui.example", http.MethodGet, http.StatusOK, "true"},
		{"preflight", "https://ui.example", http.MethodOptions, http.StatusNoContent, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.origin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/stream", http.NoBody))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.origin {
				t.Errorf("allow-origin = %q, want %q", got, tt.origin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("allow-credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}
