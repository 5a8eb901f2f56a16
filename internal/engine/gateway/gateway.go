// Package gateway wraps the external compiler and classifies its outcomes.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/respawn/internal/engine/cache"
	"go.trai.ch/zerr"
)

// emptyModule stands in for compiled output with no code (type-only or
// comment-only sources). A zero-length frame would read as "no artifact".
var emptyModule = []byte("\n")

// Gateway is the single compilation path of the coordinator.
// It consults the cache, falls back to the persistent store, and finally
// calls the transformer, writing successful results through to both.
type Gateway struct {
	cache       *cache.Cache
	transformer ports.Transformer
	store       ports.ArtifactStore
	tracer      ports.Tracer
	logger      ports.Logger

	// record serializes the staleness check with the cache update, so
	// overlapping compiles of one path keep the result of the newest source.
	record sync.Mutex
}

// New creates a Gateway. store may be nil to disable the persistent cache.
func New(
	c *cache.Cache,
	transformer ports.Transformer,
	store ports.ArtifactStore,
	tracer ports.Tracer,
	logger ports.Logger,
) *Gateway {
	return &Gateway{
		cache:       c,
		transformer: transformer,
		store:       store,
		tracer:      tracer,
		logger:      logger,
	}
}

// Resolve returns the artifact for path, compiling only on a cache miss.
func (g *Gateway) Resolve(ctx context.Context, path string) domain.Outcome {
	if g.cache.IsIgnored(path) {
		return domain.Outcome{Kind: domain.OutcomeIgnored}
	}
	if artifact, ok := g.cache.Get(path); ok {
		return domain.Outcome{Kind: domain.OutcomeCompiled, Artifact: artifact}
	}
	if artifact := g.fromStore(path); artifact != nil {
		g.cache.Put(artifact)
		g.cache.ClearFailed(path)
		return domain.Outcome{Kind: domain.OutcomeCompiled, Artifact: artifact}
	}
	return g.Compile(ctx, path)
}

// Compile runs the transformer for path unconditionally and records the outcome.
func (g *Gateway) Compile(ctx context.Context, path string) domain.Outcome {
	ctx, span := g.tracer.Start(ctx, "compile", ports.WithAttribute("path", path))
	defer span.End()

	// Stamp before compiling so an edit made during the compile is seen as newer.
	modTime, err := g.cache.Stat(path)
	if err != nil {
		span.RecordError(err)
		g.record.Lock()
		defer g.record.Unlock()
		return g.fail(path, err)
	}

	start := time.Now()
	out, err := g.transformer.Transform(ctx, path)

	g.record.Lock()
	defer g.record.Unlock()

	if errors.Is(err, domain.ErrIgnoredByPolicy) {
		span.SetAttribute("outcome", domain.OutcomeIgnored.String())
		g.cache.MarkIgnored(path)
		return domain.Outcome{Kind: domain.OutcomeIgnored}
	}

	if !g.current(path, modTime) {
		span.SetAttribute("outcome", "stale")
		g.logger.Debug(fmt.Sprintf("discarding compile of %s: source changed meanwhile", path))
		if err != nil {
			return domain.Outcome{Kind: domain.OutcomeFailed, Err: compileError(path, err)}
		}
		return domain.Outcome{Kind: domain.OutcomeCompiled, Artifact: newArtifact(path, out, modTime)}
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttribute("outcome", domain.OutcomeFailed.String())
		return g.fail(path, err)
	}

	artifact := newArtifact(path, out, modTime)
	g.cache.Put(artifact)
	if g.cache.ClearFailed(path) {
		g.logger.Info(fmt.Sprintf("compile error fixed: %s", path))
	}
	if g.store != nil {
		if err := g.store.Put(artifact); err != nil {
			g.logger.Warn(fmt.Sprintf("could not persist artifact for %s: %v", path, err))
		}
	}

	span.SetAttribute("outcome", domain.OutcomeCompiled.String())
	g.logger.Debug(fmt.Sprintf("compiled %s in %s", path, time.Since(start).Round(time.Microsecond)))
	return domain.Outcome{Kind: domain.OutcomeCompiled, Artifact: artifact}
}

// current reports whether path still has the modification time a compile
// started from.
func (g *Gateway) current(path string, modTime int64) bool {
	now, err := g.cache.Stat(path)
	return err == nil && now == modTime
}

func newArtifact(path string, out ports.TransformOutput, modTime int64) *domain.Artifact {
	code := out.Code
	if len(code) == 0 {
		code = emptyModule
	}
	return domain.NewArtifact(path, code, out.Map, modTime)
}

// Forget drops everything known about path after a change event.
// A removed path also leaves the error set: it can no longer block restarts.
func (g *Gateway) Forget(path string, kind domain.ChangeKind) {
	g.cache.Invalidate(path)
	if g.store != nil {
		if err := g.store.Delete(path); err != nil {
			g.logger.Debug(fmt.Sprintf("could not drop cached artifact for %s: %v", path, err))
		}
	}
	if kind == domain.ChangeRemoved && g.cache.ClearFailed(path) {
		g.logger.Info(fmt.Sprintf("failing file removed: %s", path))
	}
}

// Failed reports whether path is in the error set.
func (g *Gateway) Failed(path string) bool {
	return g.cache.IsFailed(path)
}

// HasFailures reports whether any path failed to compile.
func (g *Gateway) HasFailures() bool {
	return g.cache.HasFailures()
}

// Failures returns the failing paths and their diagnostics.
func (g *Gateway) Failures() map[string]error {
	return g.cache.Failures()
}

func (g *Gateway) fail(path string, cause error) domain.Outcome {
	err := compileError(path, cause)
	g.cache.Invalidate(path)
	g.cache.MarkFailed(path, err)
	g.logger.Error(err)
	return domain.Outcome{Kind: domain.OutcomeFailed, Err: err}
}

func (g *Gateway) fromStore(path string) *domain.Artifact {
	if g.store == nil {
		return nil
	}
	modTime, err := g.cache.Stat(path)
	if err != nil {
		return nil
	}
	artifact, err := g.store.Get(path, modTime)
	if err != nil {
		g.logger.Debug(fmt.Sprintf("artifact cache read failed for %s: %v", path, err))
		return nil
	}
	return artifact
}

func compileError(path string, cause error) error {
	return zerr.With(zerr.Wrap(cause, domain.ErrCompileFailed.Error()), "path", path)
}
