package piston

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aegisroom/internal/domain"
)

func TestNewExecutorDefaults(t *testing.T) {
	t.Parallel()

	e := NewExecutor(Config{})
	if e.baseURL != defaultBaseURL {
		t.Fatalf("unexpected base url: %q", e.baseURL)
	}
	if e.http.Timeout <= 0 {
		t.Fatalf("expected a client timeout")
	}
}

func TestExecuteSendsLanguageAndCode(t *testing.T) {
	t.Parallel()

	var got executeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/execute" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"language":"python","version":"3.10.0","run":{"stdout":"3\n","stderr":"","code":0}}`))
	}))
	defer server.Close()

	lang := domain.Language{ID: "python", Version: "3.10.0"}
	result, err := NewExecutor(Config{BaseURL: server.URL + "/"}).Execute(context.Background(), lang, "print(1+2)")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Stdout != "3\n" || result.Stderr != "" || result.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got.Language != "python" || got.Version != "3.10.0" || len(got.Files) != 1 || got.Files[0].Content != "print(1+2)" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestExecuteReportsExitCodeAndStderr(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"run":{"stdout":"","stderr":"SyntaxError","code":1}}`))
	}))
	defer server.Close()

	result, err := NewExecutor(Config{BaseURL: server.URL}).Execute(context.Background(), domain.Language{ID: "javascript"}, "(")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Stderr != "SyntaxError" || result.ExitCode != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteSurfacesServiceMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"cobol-1.0 runtime is unknown"}`))
	}))
	defer server.Close()

	_, err := NewExecutor(Config{BaseURL: server.URL}).Execute(context.Background(), domain.Language{ID: "cobol"}, "x")
	if err == nil || err.Error() != "cobol-1.0 runtime is unknown" {
		t.Fatalf("expected service message, got %v", err)
	}
}

func TestExecuteNonJSONFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewExecutor(Config{BaseURL: server.URL}).Execute(context.Background(), domain.Language{ID: "python"}, "x")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}
