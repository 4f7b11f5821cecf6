package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gh "github.com/google/go-github/v72/github"

	"github.com/plugkit/matrixgen/internal/classify"
	"github.com/plugkit/matrixgen/internal/httpx"
)

func newTestSource(t *testing.T, handler http.Handler) *Source {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := httpx.NewClient(httpx.WithMaxRetries(1), httpx.WithBaseDelay(time.Millisecond))
	src, err := NewSource(client, "test-token", server.URL)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	return src
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func contentsResponse(body string) map[string]any {
	return map[string]any{
		"type":     "file",
		"encoding": "base64",
		"name":     "package.json",
		"path":     "package.json",
		"content":  base64.StdEncoding.EncodeToString([]byte(body)),
	}
}

func TestBranches(t *testing.T) {
	var gotAuth string
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/plugkit/market-plugin/branches" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		writeJSON(t, w, []map[string]string{{"name": "main"}, {"name": "0.x"}, {"name": "dev"}})
	}))

	branches, err := src.Branches(context.Background(), "plugkit", "market-plugin")
	if err != nil {
		t.Fatalf("Branches failed: %v", err)
	}

	want := []string{"main", "0.x", "dev"}
	if len(branches) != len(want) {
		t.Fatalf("branches = %v, want %v", branches, want)
	}
	for i := range want {
		if branches[i] != want[i] {
			t.Errorf("branches[%d] = %q, want %q", i, branches[i], want[i])
		}
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestBranchesNotFound(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not Found"}`))
	}))

	_, err := src.Branches(context.Background(), "plugkit", "ghost")
	if !errors.Is(err, httpx.ErrNotFound) {
		t.Errorf("Branches = %v, want ErrNotFound", err)
	}
}

func TestTags(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/plugkit/market-plugin/tags" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("per_page"); got != "100" {
			t.Errorf("per_page = %q, want 100", got)
		}
		writeJSON(t, w, []map[string]string{{"name": "v1.10.0"}, {"name": "v1.9.0"}, {"name": "v0.5.0"}})
	}))

	tags, err := src.Tags(context.Background(), "plugkit", "market-plugin")
	if err != nil {
		t.Fatalf("Tags failed: %v", err)
	}
	if len(tags) != 3 || tags[0] != "v1.10.0" {
		t.Errorf("tags = %v", tags)
	}
}

func TestTagsRetriesServerError(t *testing.T) {
	attempts := 0
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, []map[string]string{{"name": "v1.0.0"}})
	}))

	tags, err := src.Tags(context.Background(), "plugkit", "flaky")
	if err != nil {
		t.Fatalf("Tags failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(tags) != 1 || tags[0] != "v1.0.0" {
		t.Errorf("tags = %v, want [v1.0.0]", tags)
	}
}

func TestManifests(t *testing.T) {
	manifests := map[string]string{
		"main": `{
			"name": "@plugkit/market",
			"version": "1.2.0",
			"dependencies": {"@plugkit/core": "^1.0.0", "left-pad": "^1.0.0"}
		}`,
		"0.x": `{
			"version": "0.8.0",
			"peerDependencies": {"@plugkit/core": "^0.9.0"}
		}`,
	}

	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/plugkit/market-plugin/branches":
			// Deliberately out of probe order; candidates are probed in
			// the classifier's fixed order regardless.
			writeJSON(t, w, []map[string]string{
				{"name": "0.x"}, {"name": "dev"}, {"name": "main"}, {"name": "master"},
			})
		case "/repos/plugkit/market-plugin/contents/package.json":
			body, ok := manifests[r.URL.Query().Get("ref")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message": "Not Found"}`))
				return
			}
			writeJSON(t, w, contentsResponse(body))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	got, err := src.Manifests(context.Background(), "plugkit", "market-plugin")
	if err != nil {
		t.Fatalf("Manifests failed: %v", err)
	}

	// master exists but has no package.json; dev is not a candidate.
	want := []classify.Manifest{
		{Version: "1.2.0", CoreRange: "^1.0.0", Branch: "main"},
		{Version: "0.8.0", CoreRange: "^0.9.0", Branch: "0.x"},
	}
	if len(got) != len(want) {
		t.Fatalf("manifests = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("manifests[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestManifestsNoCoreDependency(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/plugkit/plain/branches":
			writeJSON(t, w, []map[string]string{{"name": "main"}})
		case "/repos/plugkit/plain/contents/package.json":
			writeJSON(t, w, contentsResponse(`{"version": "1.0.0", "dependencies": {"express": "^4.0.0"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	got, err := src.Manifests(context.Background(), "plugkit", "plain")
	if err != nil {
		t.Fatalf("Manifests failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("manifests = %+v, want one entry", got)
	}
	if got[0].CoreRange != "" {
		t.Errorf("CoreRange = %q, want empty when the core is not a dependency", got[0].CoreRange)
	}
}

func TestManifestsSkipsUnparsable(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/plugkit/broken/branches":
			writeJSON(t, w, []map[string]string{{"name": "main"}, {"name": "master"}})
		case "/repos/plugkit/broken/contents/package.json":
			if r.URL.Query().Get("ref") == "main" {
				writeJSON(t, w, contentsResponse(`{not json`))
				return
			}
			writeJSON(t, w, contentsResponse(`{"version": "0.5.0", "dependencies": {"@plugkit/core": "^0.9.0"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	got, err := src.Manifests(context.Background(), "plugkit", "broken")
	if err != nil {
		t.Fatalf("Manifests failed: %v", err)
	}
	if len(got) != 1 || got[0].Branch != "master" {
		t.Errorf("manifests = %+v, want only the master manifest", got)
	}
}

func TestManifestsBranchListingFails(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := src.Manifests(context.Background(), "plugkit", "down")
	if !errors.Is(err, httpx.ErrUpstreamDown) {
		t.Errorf("Manifests = %v, want ErrUpstreamDown", err)
	}
}

func TestMapError(t *testing.T) {
	resp := func(code int) *http.Response {
		return &http.Response{StatusCode: code, Request: &http.Request{}}
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"rate limit", &gh.RateLimitError{}, httpx.ErrRateLimited},
		{"abuse rate limit", &gh.AbuseRateLimitError{}, httpx.ErrRateLimited},
		{"404", &gh.ErrorResponse{Response: resp(404)}, httpx.ErrNotFound},
		{"429", &gh.ErrorResponse{Response: resp(429)}, httpx.ErrRateLimited},
		{"503", &gh.ErrorResponse{Response: resp(503)}, httpx.ErrUpstreamDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Errorf("mapError = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("mapError = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		plain := fmt.Errorf("dial tcp: connection refused")
		if got := mapError(plain); got != plain {
			t.Errorf("mapError = %v, want the original error", got)
		}
	})
}

func TestNewSourceInvalidURL(t *testing.T) {
	client := httpx.NewClient()
	if _, err := NewSource(client, "", "://bad"); err == nil {
		t.Error("NewSource with invalid URL succeeded, want error")
	}
}
