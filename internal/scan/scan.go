// Package scan orchestrates fact gathering across the plugin list. Plugins
// are processed in fixed-size batches with a delay between batches to stay
// inside upstream rate limits; within a batch every plugin runs on its own
// goroutine, and each plugin's three source fetches run concurrently.
//
// A failing source never aborts anything: the failure is logged, recorded
// on the result, and classification sees an empty fact set for that source.
package scan

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plugkit/matrixgen/internal/classify"
	"github.com/plugkit/matrixgen/internal/npm"
	"github.com/plugkit/matrixgen/internal/registry"
)

// GitSource lists tags and probes branch manifests for a repository.
type GitSource interface {
	Tags(ctx context.Context, owner, repo string) ([]string, error)
	Manifests(ctx context.Context, owner, repo string) ([]classify.Manifest, error)
}

// PackageSource fetches a package document from the package registry.
type PackageSource interface {
	Package(ctx context.Context, name string) (*npm.Package, error)
}

// Options bound the orchestrator's aggressiveness.
type Options struct {
	// BatchSize is the number of plugins fetched concurrently per batch.
	BatchSize int
	// BatchDelay is the pause between consecutive batches.
	BatchDelay time.Duration
}

const defaultBatchSize = 10

// Result carries everything gathered for one plugin. A nil Package or an
// empty slice paired with a recorded error means that source contributed
// no signal.
type Result struct {
	Entry registry.Entry

	Manifests []classify.Manifest
	Tags      []string
	Package   *npm.Package

	ManifestErr error
	TagsErr     error
	NpmErr      error
}

// Facts folds the gathered raw inputs into the classifier's input form.
func (r Result) Facts() classify.Facts {
	f := classify.Facts{
		Manifests: r.Manifests,
		GitTags:   r.Tags,
	}
	if r.Package != nil {
		f.NpmVersions = r.Package.Versions
	}
	return f
}

// Scanner drives fact gathering for a run.
type Scanner struct {
	git    GitSource
	npm    PackageSource
	opts   Options
	logger *zap.Logger
}

// New creates a Scanner. A nil logger disables logging.
func New(git GitSource, pkgs PackageSource, opts Options, logger *zap.Logger) *Scanner {
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{git: git, npm: pkgs, opts: opts, logger: logger}
}

// Run gathers facts for every entry. Results come back in input order, one
// per entry, regardless of which sources failed along the way.
func (s *Scanner) Run(ctx context.Context, entries []registry.Entry) []Result {
	results := make([]Result, len(entries))

	for start := 0; start < len(entries); start += s.opts.BatchSize {
		if start > 0 && s.opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				// Stop pacing; the remaining fetches fail fast with the
				// context error and are recorded per source.
			case <-time.After(s.opts.BatchDelay):
			}
		}

		end := min(start+s.opts.BatchSize, len(entries))
		s.logger.Debug("starting batch",
			zap.Int("from", start),
			zap.Int("to", end-1),
			zap.Int("total", len(entries)))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = s.gather(ctx, entries[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	return results
}

// gather resolves the three raw inputs for one plugin concurrently. Each
// goroutine writes its own fields of the result, so no locking is needed.
func (s *Scanner) gather(ctx context.Context, entry registry.Entry) Result {
	res := Result{Entry: entry}

	var g errgroup.Group
	g.Go(func() error {
		manifests, err := s.git.Manifests(ctx, entry.Owner, entry.Repo)
		if err != nil {
			res.ManifestErr = err
			s.warn(entry.ID, "manifests", err)
			return nil
		}
		res.Manifests = manifests
		return nil
	})
	g.Go(func() error {
		tags, err := s.git.Tags(ctx, entry.Owner, entry.Repo)
		if err != nil {
			res.TagsErr = err
			s.warn(entry.ID, "tags", err)
			return nil
		}
		res.Tags = tags
		return nil
	})
	g.Go(func() error {
		pkg, err := s.npm.Package(ctx, npm.DeriveName(entry.ID))
		if err != nil {
			res.NpmErr = err
			s.warn(entry.ID, "npm", err)
			return nil
		}
		res.Package = pkg
		return nil
	})
	_ = g.Wait()

	return res
}

func (s *Scanner) warn(pluginID, source string, err error) {
	s.logger.Warn("source fetch failed, continuing without its signal",
		zap.String("plugin", pluginID),
		zap.String("source", source),
		zap.Error(err))
}
