package imagegen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"mediagen/internal/infra"
	"mediagen/internal/metrics"
	"mediagen/internal/providers/comfyui"
	"mediagen/internal/storage"
)

// Backend runs a workflow and fetches its artifacts. *comfyui.Client
// satisfies it.
type Backend interface {
	Generate(ctx context.Context, wf comfyui.Workflow) ([]comfyui.ArtifactRef, error)
	Download(ctx context.Context, ref comfyui.ArtifactRef, store *storage.FileStore) (string, error)
}

// Options configures a Generator.
type Options struct {
	Backend       Backend
	Store         *storage.FileStore
	Checkpoint    string
	DefaultWidth  int
	DefaultHeight int
	Logger        *infra.Logger
	// SeedSource draws a seed when the request has none. Defaults to a
	// uniform uint32.
	SeedSource func() int64
}

// Generator turns requests into downloaded images, one backend job per batch
// item.
type Generator struct {
	backend       Backend
	store         *storage.FileStore
	checkpoint    string
	defaultWidth  int
	defaultHeight int
	logger        *infra.Logger
	seed          func() int64
}

// NewGenerator validates dependencies and applies defaults.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Backend == nil {
		return nil, errors.New("imagegen: backend is required")
	}
	if opts.Store == nil {
		return nil, errors.New("imagegen: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	seed := opts.SeedSource
	if seed == nil {
		seed = func() int64 { return int64(rand.Uint32()) }
	}
	return &Generator{
		backend:       opts.Backend,
		store:         opts.Store,
		checkpoint:    opts.Checkpoint,
		defaultWidth:  opts.DefaultWidth,
		defaultHeight: opts.DefaultHeight,
		logger:        logger,
		seed:          seed,
	}, nil
}

// OutputDir is where generated images land.
func (g *Generator) OutputDir() string { return g.store.BasePath() }

// Generate runs the batch sequentially. Item i uses seed+i. The first error
// stops the batch; images already on disk are kept and reported alongside the
// error. Generate never returns a Go error: failures are carried in Result.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (result Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error().Interface("panic", rec).Msg("imagegen: generation panicked")
			result = FailedResult(fmt.Sprintf("panic: %v", rec), result.Images)
		}
		status := metrics.Status(result.Success)
		metrics.GenerationsTotal.WithLabelValues("image", status).Inc()
		metrics.GenerationLatencySeconds.WithLabelValues("image", status).Observe(time.Since(start).Seconds())
	}()

	req, err := req.Normalize()
	if err != nil {
		return FailedResult(err.Error(), nil)
	}
	width, height := ResolveDimensions(req.AspectRatio, req.Width, req.Height, g.defaultWidth, g.defaultHeight)
	steps := *req.Steps
	seed := g.seed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	images := make([]GeneratedImage, 0, req.BatchSize)
	for i := 0; i < req.BatchSize; i++ {
		itemSeed := seed + int64(i)
		wf := comfyui.BuildFluxWorkflow(comfyui.FluxParams{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Width:          width,
			Height:         height,
			Steps:          steps,
			Guidance:       req.GuidanceScale,
			Seed:           itemSeed,
			Checkpoint:     g.checkpoint,
		})
		g.logger.Info().
			Int("item", i+1).
			Int("batch", req.BatchSize).
			Int64("seed", itemSeed).
			Int("width", width).
			Int("height", height).
			Msg("imagegen: submitting workflow")

		refs, err := g.backend.Generate(ctx, wf)
		if err != nil {
			return g.fail(err, images)
		}
		for _, ref := range refs {
			localPath, err := g.backend.Download(ctx, ref, g.store)
			if err != nil {
				return g.fail(err, images)
			}
			info, err := os.Stat(localPath)
			if err != nil {
				return g.fail(err, images)
			}
			images = append(images, GeneratedImage{
				ImagePath:        localPath,
				Filename:         filepath.Base(localPath),
				Width:            width,
				Height:           height,
				Format:           string(req.OutputFormat),
				Seed:             itemSeed,
				Prompt:           req.Prompt,
				Steps:            steps,
				GuidanceScale:    req.GuidanceScale,
				FileSizeBytes:    info.Size(),
				GenerationTimeMS: time.Since(start).Milliseconds(),
			})
		}
	}
	return Result{Success: true, Images: images, TotalGenerated: len(images)}
}

// fail converts err into a failed result. Backend errors keep their message;
// anything else is reported with its type so the caller can tell local faults
// apart.
func (g *Generator) fail(err error, images []GeneratedImage) Result {
	if comfyui.IsBackendError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		g.logger.Warn().Err(err).Int("kept", len(images)).Msg("imagegen: batch aborted")
		return FailedResult(err.Error(), images)
	}
	g.logger.Error().Err(err).Int("kept", len(images)).Msg("imagegen: unexpected error")
	return FailedResult(errorType(err)+": "+err.Error(), images)
}

// errorType names the first error in the chain that is not a plain
// fmt.Errorf wrapper.
func errorType(err error) string {
	for {
		name := fmt.Sprintf("%T", err)
		next := errors.Unwrap(err)
		if next == nil || (name != "*fmt.wrapError" && name != "*fmt.wrapErrors") {
			return name
		}
		err = next
	}
}
