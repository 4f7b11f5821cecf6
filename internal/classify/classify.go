// Package classify decides which core major tracks a plugin supports from
// the facts gathered about it. Everything in this package is a pure
// function of its inputs: no I/O, no state, no clock.
package classify

import (
	"github.com/Masterminds/semver/v3"

	"github.com/plugkit/matrixgen/internal/version"
)

// CorePackage is the npm name of the shared core library plugins declare a
// dependency range on.
const CorePackage = "@plugkit/core"

// CandidateBranches is the fixed probe order for branch manifests. The
// first branch yielding a positive signal for a track wins that track's
// provenance.
var CandidateBranches = []string{"main", "master", "0.x", "1.x"}

// The two supported major tracks, and the pinned core releases probed
// against a manifest's declared range: the last of the v0 line and the
// first of the v1 line.
const (
	MajorV0 uint64 = 0
	MajorV1 uint64 = 1

	probeVersionV0 = "0.9.0"
	probeVersionV1 = "1.0.0"
)

var (
	probeV0 = semver.MustParse(probeVersionV0)
	probeV1 = semver.MustParse(probeVersionV1)
)

// Manifest is the package descriptor found on one candidate branch.
type Manifest struct {
	// Version is the plugin's own declared version.
	Version string
	// CoreRange is the declared dependency range on CorePackage. Empty
	// means the manifest carries no range and yields no signal.
	CoreRange string
	// Branch is the branch the manifest was fetched from.
	Branch string
}

// Signal is the folded manifest evidence for one plugin: whether any
// manifest vouches for each track, and the branch that did.
type Signal struct {
	V0       bool
	V0Branch string
	V1       bool
	V1Branch string
}

// Facts collects the fully resolved inputs for one plugin. A failed or
// absent source is an empty set here, indistinguishable from a repository
// that genuinely has nothing: absence of evidence is never treated as a
// negative signal, it simply contributes nothing.
type Facts struct {
	Manifests   []Manifest // in candidate-branch probe order
	GitTags     []string
	NpmVersions []string
}

// TrackVerdict is the decision for a single major track. Version and
// Branch are the original raw strings; empty means unknown.
type TrackVerdict struct {
	Supported bool
	Version   string
	Branch    string
}

// Verdict is the per-plugin classification across both tracks.
type Verdict struct {
	V0 TrackVerdict
	V1 TrackVerdict
}

// CheckManifest reports whether one branch manifest is evidence for each
// track. The manifest's own major and the core range it declares must
// agree: the v0 track needs a 0.x plugin whose range admits the probe
// release of core v0, the v1 track needs a >=1.0 plugin whose range admits
// the probe release of core v1. The cross-check guards against caret and
// wildcard ranges that would otherwise claim both tracks at once.
func CheckManifest(m Manifest) (v0, v1 bool) {
	if m.CoreRange == "" {
		return false, false
	}
	own, ok := version.Parse(m.Version)
	if !ok {
		return false, false
	}
	rng, err := semver.NewConstraint(m.CoreRange)
	if err != nil {
		return false, false
	}
	v0 = own.Major() == MajorV0 && rng.Check(probeV0)
	v1 = own.Major() >= MajorV1 && rng.Check(probeV1)
	return v0, v1
}

// CheckManifests folds per-branch checks into one Signal. Manifests must
// arrive in probe order; the first positive branch per track is recorded.
func CheckManifests(ms []Manifest) Signal {
	var s Signal
	for _, m := range ms {
		v0, v1 := CheckManifest(m)
		if v0 && !s.V0 {
			s.V0, s.V0Branch = true, m.Branch
		}
		if v1 && !s.V1 {
			s.V1, s.V1Branch = true, m.Branch
		}
	}
	return s
}

// Reconcile merges the manifest signal and the per-source latest
// selections into the final verdict. A track is supported only when at
// least one signal corroborates it. The reported version prefers the git
// tag over the npm fallback; the branch only ever comes from a manifest.
func Reconcile(f Facts) Verdict {
	sig := CheckManifests(f.Manifests)
	return Verdict{
		V0: reconcileTrack(f, MajorV0, sig.V0, sig.V0Branch),
		V1: reconcileTrack(f, MajorV1, sig.V1, sig.V1Branch),
	}
}

func reconcileTrack(f Facts, major uint64, manifestOK bool, branch string) TrackVerdict {
	git := version.SelectLatest(f.GitTags, major)
	npm := version.SelectLatest(f.NpmVersions, major)

	t := TrackVerdict{
		Supported: manifestOK || git != "" || npm != "",
		Branch:    branch,
	}
	switch {
	case git != "":
		t.Version = git
	case npm != "":
		t.Version = npm
	}
	return t
}
