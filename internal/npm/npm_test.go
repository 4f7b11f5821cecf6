package npm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/plugkit/matrixgen/internal/httpx"
)

func TestDeriveName(t *testing.T) {
	tests := []struct {
		pluginID string
		want     string
	}{
		{"@plugkit/market", "@plugkit-community/market"},
		{"@plugkit/auth-oauth", "@plugkit-community/auth-oauth"},
		{"@somebody/market", "@somebody/market"},
		{"plain-plugin", "plain-plugin"},
		{"@plugkit-community/market", "@plugkit-community/market"},
	}

	for _, tt := range tests {
		t.Run(tt.pluginID, func(t *testing.T) {
			if got := DeriveName(tt.pluginID); got != tt.want {
				t.Errorf("DeriveName(%q) = %q, want %q", tt.pluginID, got, tt.want)
			}
		})
	}
}

func TestPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path can be encoded in different ways depending on the URL library
		if r.URL.Path != "/%40plugkit-community%2Fmarket" && r.URL.Path != "/@plugkit-community%2Fmarket" && r.URL.Path != "/@plugkit-community/market" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := map[string]interface{}{
			"_id":  "@plugkit-community/market",
			"name": "@plugkit-community/market",
			"repository": map[string]string{
				"type": "git",
				"url":  "git+https://github.com/plugkit/market-plugin.git",
			},
			"dist-tags": map[string]string{"latest": "1.2.0"},
			"versions": map[string]interface{}{
				"0.3.1": map[string]interface{}{
					"version": "0.3.1",
					"license": "MIT",
				},
				"1.0.0-beta.2": map[string]interface{}{
					"version": "1.0.0-beta.2",
					"license": "MIT",
				},
				"1.2.0": map[string]interface{}{
					"version":  "1.2.0",
					"license":  "MIT",
					"homepage": "https://plugkit.dev/plugins/market",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	src := NewSource(server.URL, httpx.NewClient())
	pkg, err := src.Package(context.Background(), "@plugkit-community/market")
	if err != nil {
		t.Fatalf("Package failed: %v", err)
	}

	if pkg.Name != "@plugkit-community/market" {
		t.Errorf("Name = %q, want %q", pkg.Name, "@plugkit-community/market")
	}
	if pkg.Latest != "1.2.0" {
		t.Errorf("Latest = %q, want %q", pkg.Latest, "1.2.0")
	}
	if pkg.License != "MIT" {
		t.Errorf("License = %q, want %q", pkg.License, "MIT")
	}
	if pkg.Homepage != "https://plugkit.dev/plugins/market" {
		t.Errorf("Homepage = %q", pkg.Homepage)
	}
	if pkg.Repository != "https://github.com/plugkit/market-plugin" {
		t.Errorf("Repository = %q", pkg.Repository)
	}

	sort.Strings(pkg.Versions)
	want := []string{"0.3.1", "1.0.0-beta.2", "1.2.0"}
	if len(pkg.Versions) != len(want) {
		t.Fatalf("Versions = %v, want %v", pkg.Versions, want)
	}
	for i := range want {
		if pkg.Versions[i] != want[i] {
			t.Errorf("Versions[%d] = %q, want %q", i, pkg.Versions[i], want[i])
		}
	}
}

func TestPackageDeprecatedLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"name":      "@plugkit-community/legacy",
			"dist-tags": map[string]string{"latest": "0.9.9"},
			"versions": map[string]interface{}{
				"0.9.9": map[string]interface{}{
					"version":    "0.9.9",
					"license":    map[string]string{"type": "Apache-2.0"},
					"deprecated": "use @plugkit-community/modern instead",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	src := NewSource(server.URL, httpx.NewClient())
	pkg, err := src.Package(context.Background(), "@plugkit-community/legacy")
	if err != nil {
		t.Fatalf("Package failed: %v", err)
	}

	if pkg.Deprecated != "use @plugkit-community/modern instead" {
		t.Errorf("Deprecated = %q", pkg.Deprecated)
	}
	if pkg.License != "Apache-2.0" {
		t.Errorf("License = %q, want Apache-2.0 from license object", pkg.License)
	}
}

func TestPackageNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	src := NewSource(server.URL, httpx.NewClient())
	_, err := src.Package(context.Background(), "@plugkit-community/ghost")

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Package = %v, want *NotFoundError", err)
	}
	if nf.Name != "@plugkit-community/ghost" {
		t.Errorf("NotFoundError.Name = %q", nf.Name)
	}
	if !errors.Is(err, httpx.ErrNotFound) {
		t.Error("NotFoundError should unwrap to httpx.ErrNotFound")
	}
}

func TestPackageNoDistTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"name": "bare",
			"versions": map[string]interface{}{
				"0.1.0": map[string]interface{}{"version": "0.1.0"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	src := NewSource(server.URL, httpx.NewClient())
	pkg, err := src.Package(context.Background(), "bare")
	if err != nil {
		t.Fatalf("Package failed: %v", err)
	}
	if pkg.Latest != "" {
		t.Errorf("Latest = %q, want empty without dist-tags", pkg.Latest)
	}
	if len(pkg.Versions) != 1 || pkg.Versions[0] != "0.1.0" {
		t.Errorf("Versions = %v, want [0.1.0]", pkg.Versions)
	}
}

func TestURLBuilder(t *testing.T) {
	urls := NewSource("", nil).URLs()

	tests := []struct {
		name string
		fn   func() string
		want string
	}{
		{"registry", func() string { return urls.Registry("@plugkit-community/market", "") }, "https://www.npmjs.com/package/@plugkit-community/market"},
		{"registry with version", func() string { return urls.Registry("@plugkit-community/market", "1.2.0") }, "https://www.npmjs.com/package/@plugkit-community/market/v/1.2.0"},
		{"purl scoped", func() string { return urls.PURL("@plugkit-community/market", "") }, "pkg:npm/@plugkit-community/market"},
		{"purl scoped with version", func() string { return urls.PURL("@plugkit-community/market", "1.2.0") }, "pkg:npm/@plugkit-community/market@1.2.0"},
		{"purl bare", func() string { return urls.PURL("lodash", "4.17.21") }, "pkg:npm/lodash@4.17.21"},
		{"purl bare no version", func() string { return urls.PURL("lodash", "") }, "pkg:npm/lodash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractLicense(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"string", "MIT", "MIT"},
		{"object", map[string]interface{}{"type": "BSD-3-Clause"}, "BSD-3-Clause"},
		{"array", []interface{}{"MIT", map[string]interface{}{"type": "Apache-2.0"}}, "MIT,Apache-2.0"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractLicense(tt.in); got != tt.want {
				t.Errorf("extractLicense = %q, want %q", got, tt.want)
			}
		})
	}
}
