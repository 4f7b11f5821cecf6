// Package npm provides the package-registry side of fact gathering: the
// published version strings and latest-release metadata for a plugin's npm
// package.
package npm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/plugkit/matrixgen/internal/httpx"
)

// DefaultURL is the public npm registry.
const DefaultURL = "https://registry.npmjs.org"

// Plugins that live under the plugkit org on GitHub publish their packages
// under the community scope on npm.
const (
	pluginScope    = "@plugkit/"
	publishedScope = "@plugkit-community/"
)

// DeriveName maps a plugin identifier to the npm package name it is
// published under. Identifiers outside the plugkit scope pass through
// unchanged.
func DeriveName(pluginID string) string {
	if rest, ok := strings.CutPrefix(pluginID, pluginScope); ok {
		return publishedScope + rest
	}
	return pluginID
}

// Source is a client for one npm-compatible registry.
type Source struct {
	baseURL string
	client  *httpx.Client
	urls    *URLs
}

// NewSource creates a Source against baseURL, or the public registry when
// baseURL is empty.
func NewSource(baseURL string, client *httpx.Client) *Source {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	s := &Source{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
	s.urls = &URLs{}
	return s
}

// URLs returns the page and purl builders for this registry.
func (s *Source) URLs() *URLs {
	return s.urls
}

// Package is the subset of a registry document the report and the
// classifier consume.
type Package struct {
	// Name is the package name as the registry reports it.
	Name string
	// Versions holds every published version string, unordered.
	Versions []string
	// Latest is the "latest" dist-tag, empty if the package has none.
	Latest string
	// License, Deprecated, Homepage and Repository describe the latest
	// release. Deprecated carries the deprecation message, empty when the
	// release is not deprecated.
	License    string
	Deprecated string
	Homepage   string
	Repository string
}

// NotFoundError reports a package the registry does not know.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("npm: package %s not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return httpx.ErrNotFound
}

type packageResponse struct {
	ID          string                 `json:"_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Homepage    interface{}            `json:"homepage"`
	Repository  interface{}            `json:"repository"`
	Versions    map[string]versionInfo `json:"versions"`
	DistTags    map[string]string      `json:"dist-tags"`
}

type versionInfo struct {
	Version    string      `json:"version"`
	License    interface{} `json:"license"`
	Homepage   interface{} `json:"homepage"`
	Repository interface{} `json:"repository"`
	Deprecated string      `json:"deprecated"`
}

// Package fetches the registry document for name. A missing package is a
// *NotFoundError; callers treat any failure as "no npm signal".
func (s *Source) Package(ctx context.Context, name string) (*Package, error) {
	docURL := fmt.Sprintf("%s/%s", s.baseURL, url.PathEscape(name))

	var resp packageResponse
	if err := s.client.GetJSON(ctx, docURL, &resp); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, &NotFoundError{Name: name}
		}
		return nil, err
	}

	versions := make([]string, 0, len(resp.Versions))
	for num := range resp.Versions {
		versions = append(versions, num)
	}

	latestVersion := resp.DistTags["latest"]
	latest := resp.Versions[latestVersion]

	pkg := &Package{
		Name:       coalesceString(resp.Name, resp.ID, name),
		Versions:   versions,
		Latest:     latestVersion,
		License:    extractLicense(latest.License),
		Deprecated: latest.Deprecated,
		Homepage:   extractString(coalesce(latest.Homepage, resp.Homepage)),
		Repository: extractRepoURL(resp.Repository, latest.Repository),
	}
	return pkg, nil
}

func extractString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
		if s, ok := arr[0].(string); ok {
			return s
		}
	}
	return ""
}

func extractRepoURL(pkgRepo, versionRepo interface{}) string {
	for _, repo := range []interface{}{versionRepo, pkgRepo} {
		switch r := repo.(type) {
		case string:
			return normalizeGitURL(r)
		case map[string]interface{}:
			if url, ok := r["url"].(string); ok {
				return normalizeGitURL(url)
			}
		case []interface{}:
			if len(r) > 0 {
				if m, ok := r[0].(map[string]interface{}); ok {
					if url, ok := m["url"].(string); ok {
						return normalizeGitURL(url)
					}
				}
			}
		}
	}
	return ""
}

func normalizeGitURL(u string) string {
	u = strings.TrimPrefix(u, "git+")
	u = strings.TrimPrefix(u, "git://")
	u = strings.TrimSuffix(u, ".git")
	if strings.HasPrefix(u, "github.com/") {
		u = "https://" + u
	}
	return u
}

func extractLicense(v interface{}) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]interface{}:
		if t, ok := l["type"].(string); ok {
			return t
		}
	case []interface{}:
		var licenses []string
		for _, item := range l {
			switch li := item.(type) {
			case string:
				licenses = append(licenses, li)
			case map[string]interface{}:
				if t, ok := li["type"].(string); ok {
					licenses = append(licenses, t)
				}
			}
		}
		return strings.Join(licenses, ",")
	}
	return ""
}

func coalesce(values ...interface{}) interface{} {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func coalesceString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// URLs builds npmjs.com page URLs and package URLs.
type URLs struct{}

// Registry returns the package page, pinned to a version when given.
func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
	}
	return fmt.Sprintf("https://www.npmjs.com/package/%s", name)
}

// PURL returns the package URL for name, with the version qualifier when
// given.
func (u *URLs) PURL(name, version string) string {
	namespace := ""
	pkgName := name
	if strings.HasPrefix(name, "@") && strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		namespace = parts[0]
		pkgName = parts[1]
	}

	if namespace != "" {
		if version != "" {
			return fmt.Sprintf("pkg:npm/%s/%s@%s", namespace, pkgName, version)
		}
		return fmt.Sprintf("pkg:npm/%s/%s", namespace, pkgName)
	}

	if version != "" {
		return fmt.Sprintf("pkg:npm/%s@%s", pkgName, version)
	}
	return fmt.Sprintf("pkg:npm/%s", pkgName)
}
