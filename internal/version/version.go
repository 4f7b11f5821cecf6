// Package version normalizes raw tag and registry version strings and
// selects per-track latest versions from them.
package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Parse normalizes a raw version string into a comparable form. A leading
// "v" and prerelease suffixes are tolerated. Unparsable strings report
// ok=false and must be excluded from every downstream comparison.
func Parse(raw string) (*semver.Version, bool) {
	v, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	return v, true
}

// SelectLatest picks the best version of the given major from one source's
// raw version strings. A stable release beats any prerelease of the same
// major; within each group the highest version by semantic precedence wins,
// never string order. The result is the original raw form, or "" when the
// major has no parseable versions.
func SelectLatest(raws []string, major uint64) string {
	var (
		bestStable    *semver.Version
		bestStableRaw string
		bestPre       *semver.Version
		bestPreRaw    string
	)

	for _, raw := range raws {
		v, ok := Parse(raw)
		if !ok || v.Major() != major {
			continue
		}
		if v.Prerelease() == "" {
			if bestStable == nil || v.GreaterThan(bestStable) {
				bestStable, bestStableRaw = v, raw
			}
		} else {
			if bestPre == nil || v.GreaterThan(bestPre) {
				bestPre, bestPreRaw = v, raw
			}
		}
	}

	if bestStable != nil {
		return bestStableRaw
	}
	return bestPreRaw
}
