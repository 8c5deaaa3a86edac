package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"denoise-bench/internal/metrics"
	"denoise-bench/internal/models"
	"denoise-bench/internal/processing/filters"
)

// filterRun is the slot one filter writes its outcome into
type filterRun struct {
	name    string
	result  models.FilterResult
	preview string
	err     error
}

// runFilters applies every filter in the bank to noisy, at most c.workers at
// a time. Slots follow bank order regardless of completion order. A failing
// filter only fails its own slot; cancellation of ctx aborts the run.
func (c *Coordinator) runFilters(ctx context.Context, original, noisy *models.Image) ([]filterRun, error) {
	bank := c.bank.Filters()
	runs := make([]filterRun, len(bank))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, f := range bank {
		runs[i].name = f.Name()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.runFilter(&runs[i], f, original, noisy)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return runs, nil
}

// runFilter fills one slot. Errors and panics from the filter, the scoring
// or the preview are recorded in the slot.
func (c *Coordinator) runFilter(run *filterRun, f filters.Filter, original, noisy *models.Image) {
	defer func() {
		if r := recover(); r != nil {
			run.err = &models.FilterError{Filter: run.name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, err := f.Apply(noisy)
	if err != nil {
		run.err = err
		return
	}

	mse, err := metrics.MSE(original, out)
	if err != nil {
		run.err = &models.FilterError{Filter: run.name, Err: fmt.Errorf("scoring: %w", err)}
		return
	}

	preview, err := c.codec.Preview(out)
	if err != nil {
		run.err = &models.FilterError{Filter: run.name, Err: fmt.Errorf("preview: %w", err)}
		return
	}

	run.result = models.FilterResult{
		Name:  run.name,
		Image: out,
		MSE:   mse,
		PSNR:  metrics.PSNRFromMSE(mse),
	}
	run.preview = preview
}

// collect splits slots into a result set and the matching previews. It
// fails with the first slot's error when no filter succeeded.
func collect(runs []filterRun) (*models.ResultSet, []string, error) {
	set := &models.ResultSet{}
	var previews []string
	var firstErr error

	for _, run := range runs {
		if run.err != nil {
			if firstErr == nil {
				firstErr = run.err
			}
			set.Failures = append(set.Failures, models.FilterFailure{
				Name:  run.name,
				Error: run.err.Error(),
				Kind:  models.ErrorKind(run.err),
			})
			continue
		}
		set.Results = append(set.Results, run.result)
		previews = append(previews, run.preview)
	}

	if len(set.Results) == 0 {
		if firstErr == nil {
			return nil, nil, models.ErrNoResults
		}
		return nil, nil, firstErr
	}

	return set, previews, nil
}
