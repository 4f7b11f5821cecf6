// Package registry loads the static plugin registry file: a JSON object
// mapping plugin identifiers to git references of the literal form
// "github:owner/repo". Entries that do not match the form are filtered
// out here, before any classification happens.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const refPrefix = "github:"

// Entry is one accepted plugin registration.
type Entry struct {
	// ID is the plugin identifier, e.g. "@plugkit/market".
	ID string
	// Owner and Repo are parsed from the reference.
	Owner string
	Repo  string
	// Ref is the original reference string, kept for the report.
	Ref string
}

// HTMLURL returns the repository page on github.com.
func (e Entry) HTMLURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", e.Owner, e.Repo)
}

// PURL returns the package URL for the repository.
func (e Entry) PURL() string {
	return fmt.Sprintf("pkg:github/%s/%s", strings.ToLower(e.Owner), strings.ToLower(e.Repo))
}

// Rejected records an entry dropped during filtering and why, so the
// validate command can report it.
type Rejected struct {
	ID     string
	Ref    string
	Reason string
}

// ParseRef splits a "github:owner/repo" reference. ok is false for any
// other shape.
func ParseRef(ref string) (owner, repo string, ok bool) {
	rest, found := strings.CutPrefix(ref, refPrefix)
	if !found {
		return "", "", false
	}
	owner, repo, found = strings.Cut(rest, "/")
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	if strings.ContainsAny(owner, " \t") || strings.ContainsAny(repo, " \t") {
		return "", "", false
	}
	return owner, repo, true
}

// Load reads and filters the registry file. The returned entries keep the
// file's key order. An unreadable or malformed file is an error; individual
// bad entries are not, they come back in rejected.
func Load(path string) ([]Entry, []Rejected, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading registry file: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, rejected, err := Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return entries, rejected, nil
}

// Parse decodes a registry document. The decoder walks tokens rather than
// unmarshalling into a map so the original key order survives into the
// report.
func Parse(r io.Reader) ([]Entry, []Rejected, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("registry document must be a JSON object")
	}

	var (
		entries  []Entry
		rejected []Rejected
		seen     = make(map[string]bool)
	)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid JSON: %w", err)
		}
		id := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("invalid JSON: %w", err)
		}

		var ref string
		if err := json.Unmarshal(raw, &ref); err != nil {
			rejected = append(rejected, Rejected{ID: id, Ref: string(raw), Reason: "reference is not a string"})
			continue
		}

		switch {
		case id == "":
			rejected = append(rejected, Rejected{ID: id, Ref: ref, Reason: "empty plugin identifier"})
		case seen[id]:
			rejected = append(rejected, Rejected{ID: id, Ref: ref, Reason: "duplicate plugin identifier"})
		default:
			owner, repo, ok := ParseRef(ref)
			if !ok {
				rejected = append(rejected, Rejected{ID: id, Ref: ref, Reason: `reference does not match "github:owner/repo"`})
				continue
			}
			seen[id] = true
			entries = append(entries, Entry{ID: id, Owner: owner, Repo: repo, Ref: ref})
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if tok, err := dec.Token(); err != io.EOF {
		return nil, nil, fmt.Errorf("trailing data after registry object: %v", tok)
	}

	return entries, rejected, nil
}
