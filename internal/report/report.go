// Package report assembles the output artifact: one JSON document holding
// the generation timestamp and, per plugin in input order, the gathered
// source facts and the support verdict.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/git-pkgs/purl"
	"github.com/iancoleman/orderedmap"

	"github.com/plugkit/matrixgen/internal/classify"
	"github.com/plugkit/matrixgen/internal/npm"
	"github.com/plugkit/matrixgen/internal/scan"
	"github.com/plugkit/matrixgen/internal/version"
)

// Report is the generated registry artifact. Registry preserves the input
// file's plugin order so consecutive runs diff cleanly.
type Report struct {
	GeneratedAt time.Time
	Registry    *orderedmap.OrderedMap
}

// Build derives the artifact from the scan results. Classification happens
// here, once per plugin, on the fully resolved facts.
func Build(results []scan.Result, now time.Time) *Report {
	reg := newMap()
	for _, res := range results {
		reg.Set(res.Entry.ID, entrySection(res))
	}
	return &Report{
		GeneratedAt: now.UTC(),
		Registry:    reg,
	}
}

func entrySection(res scan.Result) *orderedmap.OrderedMap {
	verdict := classify.Reconcile(res.Facts())

	e := newMap()
	e.Set("repo", res.Entry.Ref)
	e.Set("git", gitSection(res))
	e.Set("npm", npmSection(res))
	e.Set("tracks", tracksSection(verdict))
	e.Set("supports", supportsSection(verdict))
	return e
}

func gitSection(res scan.Result) *orderedmap.OrderedMap {
	g := newMap()
	g.Set("url", res.Entry.HTMLURL())
	setPURL(g, res.Entry.PURL())
	g.Set("v0", nullable(version.SelectLatest(res.Tags, classify.MajorV0)))
	g.Set("v1", nullable(version.SelectLatest(res.Tags, classify.MajorV1)))
	if msg := joinErrors(res.ManifestErr, res.TagsErr); msg != "" {
		g.Set("error", msg)
	}
	return g
}

func npmSection(res scan.Result) *orderedmap.OrderedMap {
	name := npm.DeriveName(res.Entry.ID)
	var urls npm.URLs

	n := newMap()
	n.Set("package", name)
	setPURL(n, urls.PURL(name, ""))

	var published []string
	if res.Package != nil {
		published = res.Package.Versions
		n.Set("latest", nullable(res.Package.Latest))
		if res.Package.License != "" {
			n.Set("license", res.Package.License)
		}
		if res.Package.Deprecated != "" {
			n.Set("deprecated", res.Package.Deprecated)
		}
	}
	n.Set("v0", nullable(version.SelectLatest(published, classify.MajorV0)))
	n.Set("v1", nullable(version.SelectLatest(published, classify.MajorV1)))
	if res.NpmErr != nil {
		n.Set("error", res.NpmErr.Error())
	}
	return n
}

func tracksSection(v classify.Verdict) *orderedmap.OrderedMap {
	t := newMap()
	t.Set("v0", trackSection(v.V0))
	t.Set("v1", trackSection(v.V1))
	return t
}

func trackSection(tv classify.TrackVerdict) *orderedmap.OrderedMap {
	t := newMap()
	t.Set("supported", tv.Supported)
	t.Set("version", nullable(tv.Version))
	t.Set("branch", nullable(tv.Branch))
	return t
}

func supportsSection(v classify.Verdict) *orderedmap.OrderedMap {
	s := newMap()
	s.Set("v0", v.V0.Supported)
	s.Set("v1", v.V1.Supported)
	return s
}

// Encode renders the document as 2-space-indented JSON with a trailing
// newline.
func (r *Report) Encode() ([]byte, error) {
	doc := newMap()
	doc.Set("generatedAt", r.GeneratedAt.Format(time.RFC3339))
	doc.Set("registry", r.Registry)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes the report to path, replacing whatever is there.
func (r *Report) Write(path string) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func newMap() *orderedmap.OrderedMap {
	m := orderedmap.New()
	m.SetEscapeHTML(false)
	return m
}

// nullable maps the empty string to JSON null; the artifact distinguishes
// "unknown" from an empty value.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// setPURL stores a package URL only when it holds up as one.
func setPURL(m *orderedmap.OrderedMap, raw string) {
	if _, err := purl.Parse(raw); err != nil {
		return
	}
	m.Set("purl", raw)
}

func joinErrors(errs ...error) string {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return strings.Join(msgs, "; ")
}
