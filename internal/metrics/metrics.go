// Package metrics scores reconstructions against the original image and
// ranks filter results.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"denoise-bench/internal/models"
)

// DefaultPSNRCap is the display value used in place of an infinite PSNR
const DefaultPSNRCap = 100.0

// MSE returns the mean of squared per-sample differences over all samples
// and channels.
func MSE(a, b *models.Image) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, fmt.Errorf("mse: first image: %w", err)
	}
	if err := b.Validate(); err != nil {
		return 0, fmt.Errorf("mse: second image: %w", err)
	}
	if !a.SameShape(b) {
		return 0, fmt.Errorf("mse: shape mismatch %dx%dx%d vs %dx%dx%d",
			a.Width, a.Height, a.Channels, b.Width, b.Height, b.Channels)
	}

	var sum float64
	for i := range a.Pix {
		d := float64(a.Pix[i]) - float64(b.Pix[i])
		sum += d * d
	}

	return sum / float64(len(a.Pix)), nil
}

// PSNR returns the peak signal-to-noise ratio in dB, +Inf for identical images
func PSNR(a, b *models.Image) (float64, error) {
	mse, err := MSE(a, b)
	if err != nil {
		return 0, err
	}
	return PSNRFromMSE(mse), nil
}

// PSNRFromMSE converts an MSE value into PSNR relative to MaxIntensity
func PSNRFromMSE(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	const peak = float64(models.MaxIntensity)
	return 10 * math.Log10(peak*peak/mse)
}

// DisplayPSNR replaces an infinite PSNR with limit so it can be serialized
// and plotted
func DisplayPSNR(psnr, limit float64) float64 {
	if math.IsInf(psnr, 1) || psnr > limit {
		return limit
	}
	return psnr
}

// SelectBest returns the result with the lowest MSE. Results are scanned in
// canonical order and the first one wins ties.
func SelectBest(results []models.FilterResult) (models.FilterResult, error) {
	if len(results) == 0 {
		return models.FilterResult{}, models.ErrNoResults
	}

	best := 0
	for i := 1; i < len(results); i++ {
		if results[i].MSE < results[best].MSE {
			best = i
		}
	}

	return results[best], nil
}

// SelectWorst returns the result with the highest MSE, first wins ties
func SelectWorst(results []models.FilterResult) (models.FilterResult, error) {
	if len(results) == 0 {
		return models.FilterResult{}, models.ErrNoResults
	}

	worst := 0
	for i := 1; i < len(results); i++ {
		if results[i].MSE > results[worst].MSE {
			worst = i
		}
	}

	return results[worst], nil
}

// Summarize aggregates a run's results. PSNR aggregates are raw and may be
// +Inf; callers cap them for display.
func Summarize(results []models.FilterResult) (models.SummaryStats, error) {
	best, err := SelectBest(results)
	if err != nil {
		return models.SummaryStats{}, err
	}
	worst, err := SelectWorst(results)
	if err != nil {
		return models.SummaryStats{}, err
	}

	mse := make([]float64, len(results))
	psnr := make([]float64, len(results))
	for i, r := range results {
		mse[i] = r.MSE
		psnr[i] = r.PSNR
	}

	return models.SummaryStats{
		BestFilter:  best.Name,
		BestMSE:     best.MSE,
		BestPSNR:    best.PSNR,
		WorstFilter: worst.Name,
		AvgMSE:      stat.Mean(mse, nil),
		AvgPSNR:     stat.Mean(psnr, nil),
		MinMSE:      floats.Min(mse),
		MaxMSE:      floats.Max(mse),
		MinPSNR:     floats.Min(psnr),
		MaxPSNR:     floats.Max(psnr),
	}, nil
}

// CapStats applies DisplayPSNR to every PSNR field of s
func CapStats(s models.SummaryStats, limit float64) models.SummaryStats {
	s.BestPSNR = DisplayPSNR(s.BestPSNR, limit)
	s.AvgPSNR = DisplayPSNR(s.AvgPSNR, limit)
	s.MinPSNR = DisplayPSNR(s.MinPSNR, limit)
	s.MaxPSNR = DisplayPSNR(s.MaxPSNR, limit)
	return s
}
