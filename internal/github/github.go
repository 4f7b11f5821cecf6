// Package github provides the source-hosting side of fact gathering:
// branch listing, tag listing, and probing candidate branches for plugin
// manifests.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v72/github"

	"github.com/plugkit/matrixgen/internal/classify"
	"github.com/plugkit/matrixgen/internal/httpx"
)

// tagPageSize caps tag listing at the 100 most recent tags; older tags are
// not consulted.
const tagPageSize = 100

// Source is a client for one GitHub API endpoint. Calls go through the
// shared httpx retry loop and the per-host circuit breaker, so a dead API
// degrades to per-plugin "no signal" instead of burning the whole run.
type Source struct {
	gh     *gh.Client
	client *httpx.Client
	host   string
}

// NewSource builds a Source over client's transport. token authenticates
// requests (unauthenticated GitHub quota is useless for real registries).
// apiURL overrides the API base URL for GitHub Enterprise or tests; empty
// means api.github.com.
func NewSource(client *httpx.Client, token, apiURL string) (*Source, error) {
	ghc := gh.NewClient(client.HTTPClient())
	if token != "" {
		ghc = ghc.WithAuthToken(token)
	}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		base, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		ghc.BaseURL = base
	}
	return &Source{
		gh:     ghc,
		client: client,
		host:   ghc.BaseURL.Host,
	}, nil
}

// Branches lists the repository's branch names (first page of 100).
func (s *Source) Branches(ctx context.Context, owner, repo string) ([]string, error) {
	var names []string
	err := s.client.Do(ctx, s.host, func() error {
		branches, _, err := s.gh.Repositories.ListBranches(ctx, owner, repo, &gh.BranchListOptions{
			ListOptions: gh.ListOptions{PerPage: tagPageSize},
		})
		if err != nil {
			return mapError(err)
		}
		names = names[:0]
		for _, b := range branches {
			names = append(names, b.GetName())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing branches for %s/%s: %w", owner, repo, err)
	}
	return names, nil
}

// Tags lists the repository's most recent tag names, at most one page of
// 100.
func (s *Source) Tags(ctx context.Context, owner, repo string) ([]string, error) {
	var names []string
	err := s.client.Do(ctx, s.host, func() error {
		tags, _, err := s.gh.Repositories.ListTags(ctx, owner, repo, &gh.ListOptions{PerPage: tagPageSize})
		if err != nil {
			return mapError(err)
		}
		names = names[:0]
		for _, t := range tags {
			names = append(names, t.GetName())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing tags for %s/%s: %w", owner, repo, err)
	}
	return names, nil
}

// packageJSON is the slice of a plugin manifest the classifier needs.
type packageJSON struct {
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// coreRange looks the core dependency up in dependencies first, then
// peerDependencies. devDependencies never count: building against the core
// for tests is not a compatibility declaration.
func (p packageJSON) coreRange() string {
	if r, ok := p.Dependencies[classify.CorePackage]; ok {
		return r
	}
	if r, ok := p.PeerDependencies[classify.CorePackage]; ok {
		return r
	}
	return ""
}

// Manifests probes the candidate branches that exist on the repository, in
// the classifier's fixed order, and returns the manifests found. Branches
// without a package.json, and branches whose manifest cannot be fetched or
// parsed, are skipped; only a failed branch listing is an error.
func (s *Source) Manifests(ctx context.Context, owner, repo string) ([]classify.Manifest, error) {
	branches, err := s.Branches(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	exists := make(map[string]bool, len(branches))
	for _, b := range branches {
		exists[b] = true
	}

	var manifests []classify.Manifest
	for _, branch := range classify.CandidateBranches {
		if !exists[branch] {
			continue
		}
		m, err := s.manifestAt(ctx, owner, repo, branch)
		if err != nil {
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func (s *Source) manifestAt(ctx context.Context, owner, repo, branch string) (classify.Manifest, error) {
	var raw string
	err := s.client.Do(ctx, s.host, func() error {
		fc, _, _, err := s.gh.Repositories.GetContents(ctx, owner, repo, "package.json",
			&gh.RepositoryContentGetOptions{Ref: branch})
		if err != nil {
			return mapError(err)
		}
		if fc == nil {
			return httpx.ErrNotFound
		}
		content, err := fc.GetContent()
		if err != nil {
			return fmt.Errorf("decoding package.json content: %w", err)
		}
		raw = content
		return nil
	})
	if err != nil {
		return classify.Manifest{}, err
	}

	var pj packageJSON
	if err := json.Unmarshal([]byte(raw), &pj); err != nil {
		return classify.Manifest{}, fmt.Errorf("parsing package.json on %s: %w", branch, err)
	}
	return classify.Manifest{
		Version:   pj.Version,
		CoreRange: pj.coreRange(),
		Branch:    branch,
	}, nil
}

// mapError converts go-github errors to the fetch layer's sentinels so the
// retry loop and the breaker treat them uniformly.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("github: %w", httpx.ErrRateLimited)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch {
		case respErr.Response.StatusCode == http.StatusNotFound:
			return httpx.ErrNotFound
		case respErr.Response.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("github: %w", httpx.ErrRateLimited)
		case respErr.Response.StatusCode >= 500:
			return fmt.Errorf("github: %w", httpx.ErrUpstreamDown)
		}
	}
	return err
}
