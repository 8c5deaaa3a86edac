// Package pipeline drives a session through upload, degradation, filtering
// and scoring, and serves exports of the stored results.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"denoise-bench/internal/logger"
	"denoise-bench/internal/metrics"
	"denoise-bench/internal/models"
	"denoise-bench/internal/noise"
	"denoise-bench/internal/processing/filters"
	"denoise-bench/internal/session"
)

const component = "Pipeline"

type Options struct {
	Store   session.Store
	Bank    *filters.Bank
	Codec   Codec
	Logger  logger.Logger
	Sources SourceFactory

	// Workers bounds concurrent filter runs per process call
	Workers int

	// PSNRCap replaces infinite PSNR in responses and chart series
	PSNRCap float64
}

type Coordinator struct {
	store   session.Store
	bank    *filters.Bank
	codec   Codec
	logger  logger.Logger
	sources SourceFactory
	workers int
	psnrCap float64
	locks   *sessionLocks
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: session store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("pipeline: codec is required")
	}

	c := &Coordinator{
		store:   opts.Store,
		bank:    opts.Bank,
		codec:   opts.Codec,
		logger:  opts.Logger,
		sources: opts.Sources,
		workers: opts.Workers,
		psnrCap: opts.PSNRCap,
		locks:   newSessionLocks(),
	}

	if c.bank == nil {
		c.bank = filters.DefaultBank()
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	if c.sources == nil {
		c.sources = SeededSources(0)
	}
	if c.workers <= 0 {
		c.workers = runtime.NumCPU()
	}
	if c.psnrCap <= 0 {
		c.psnrCap = metrics.DefaultPSNRCap
	}

	return c, nil
}

// Upload decodes raw image bytes and opens a new session for them. filename
// is the client's name for the file and may be empty.
func (c *Coordinator) Upload(ctx context.Context, filename string, raw []byte) (*models.UploadResult, error) {
	img, err := c.codec.Decode(raw)
	if err != nil {
		c.logger.Warning(component, "upload rejected", map[string]interface{}{
			"bytes": len(raw),
			"error": err.Error(),
		})
		return nil, err
	}

	preview, err := c.codec.Preview(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	id, err := c.store.Create(ctx, img, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.logger.Info(component, "image uploaded", map[string]interface{}{
		"session_id": id,
		"filename":   filename,
		"width":      img.Width,
		"height":     img.Height,
		"channels":   img.Channels,
	})

	return &models.UploadResult{
		SessionID: id,
		Filename:  filename,
		Width:     img.Width,
		Height:    img.Height,
		Channels:  img.Channels,
		Preview:   preview,
	}, nil
}

// Process degrades the session's original image, runs every filter in the
// bank against the noisy copy and stores the scored results, replacing any
// earlier run. Nothing is stored when the call fails.
func (c *Coordinator) Process(ctx context.Context, id string, spec models.NoiseSpec) (*models.ProcessResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	unlock := c.locks.lock(id)
	defer unlock()

	start := time.Now()

	original, err := c.store.GetOriginal(ctx, id)
	if err != nil {
		return nil, err
	}

	noisy, err := noise.Apply(original, spec, c.sources())
	if err != nil {
		return nil, err
	}

	noisyPreview, err := c.codec.Preview(noisy)
	if err != nil {
		return nil, fmt.Errorf("failed to encode noisy preview: %w", err)
	}

	runs, err := c.runFilters(ctx, original, noisy)
	if err != nil {
		return nil, err
	}

	set, previews, err := collect(runs)
	if err != nil {
		c.logger.Error(component, err, map[string]interface{}{
			"session_id": id,
			"filters":    len(runs),
		})
		return nil, err
	}

	stats, err := metrics.Summarize(set.Results)
	if err != nil {
		return nil, err
	}
	best, err := metrics.SelectBest(set.Results)
	if err != nil {
		return nil, err
	}

	if err := c.store.Update(ctx, id, spec, noisy, set); err != nil {
		return nil, err
	}

	for _, f := range set.Failures {
		c.logger.Warning(component, "filter skipped", map[string]interface{}{
			"session_id": id,
			"filter":     f.Name,
			"kind":       f.Kind,
		})
	}
	c.logger.Info(component, "process completed", map[string]interface{}{
		"session_id":  id,
		"noise_type":  string(spec.Kind),
		"filters":     set.Len(),
		"failures":    len(set.Failures),
		"best_filter": best.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return c.buildProcessResult(id, spec, noisyPreview, set, previews, best, stats), nil
}

func (c *Coordinator) buildProcessResult(id string, spec models.NoiseSpec, noisyPreview string,
	set *models.ResultSet, previews []string, best models.FilterResult, stats models.SummaryStats) *models.ProcessResult {

	perFilter := make([]models.FilterSummary, len(set.Results))
	for i, r := range set.Results {
		perFilter[i] = models.FilterSummary{
			Name:      r.Name,
			Preview:   previews[i],
			MSE:       round4(r.MSE),
			PSNR:      round4(metrics.DisplayPSNR(r.PSNR, c.psnrCap)),
			Identical: math.IsInf(r.PSNR, 1),
		}
	}

	capped := metrics.CapStats(stats, c.psnrCap)
	capped.BestMSE = round4(capped.BestMSE)
	capped.BestPSNR = round4(capped.BestPSNR)
	capped.AvgMSE = round4(capped.AvgMSE)
	capped.AvgPSNR = round4(capped.AvgPSNR)
	capped.MinMSE = round4(capped.MinMSE)
	capped.MaxMSE = round4(capped.MaxMSE)
	capped.MinPSNR = round4(capped.MinPSNR)
	capped.MaxPSNR = round4(capped.MaxPSNR)

	return &models.ProcessResult{
		SessionID:    id,
		NoiseType:    string(spec.Kind),
		NoisyPreview: noisyPreview,
		PerFilter:    perFilter,
		Failures:     set.Failures,
		Best: models.BestFilter{
			Name:      best.Name,
			MSE:       round4(best.MSE),
			PSNR:      round4(metrics.DisplayPSNR(best.PSNR, c.psnrCap)),
			Identical: math.IsInf(best.PSNR, 1),
		},
		Stats: capped,
	}
}

// FilterNames lists the bank in canonical order
func (c *Coordinator) FilterNames() []string {
	return c.bank.Names()
}

func round4(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*1e4) / 1e4
}
