// Package noise synthesizes degraded copies of an image. Every model is
// deterministic for a given random source so runs can be replayed.
package noise

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"denoise-bench/internal/models"
)

// Apply degrades img according to spec using src as the only source of
// randomness. The input image is left untouched.
func Apply(img *models.Image, spec models.NoiseSpec, src rand.Source) (*models.Image, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, fmt.Errorf("noise input: %w", err)
	}
	if src == nil {
		return nil, fmt.Errorf("noise: random source is nil")
	}

	switch spec.Kind {
	case models.NoiseSaltPepper:
		return SaltPepper(img, spec.SaltProb, spec.PepperProb, src), nil
	case models.NoiseGaussian:
		return Gaussian(img, spec.Sigma, src), nil
	default:
		return nil, fmt.Errorf("%w: unknown noise type %q", models.ErrInvalidParameter, spec.Kind)
	}
}

// SaltPepper sets each sample to the maximum intensity with probability
// saltProb, otherwise to the minimum with probability pepperProb. Two
// uniforms are drawn per sample, salt first, whatever the outcome.
func SaltPepper(img *models.Image, saltProb, pepperProb float64, src rand.Source) *models.Image {
	rng := rand.New(src)
	out := img.Clone()

	for i := range out.Pix {
		uSalt := rng.Float64()
		uPepper := rng.Float64()

		switch {
		case uSalt < saltProb:
			out.Pix[i] = models.MaxIntensity
		case uPepper < pepperProb:
			out.Pix[i] = models.MinIntensity
		}
	}

	return out
}

// Gaussian adds zero-mean normal noise with the given standard deviation,
// clamps to the intensity range and truncates toward zero.
func Gaussian(img *models.Image, sigma float64, src rand.Source) *models.Image {
	out := img.Clone()
	if sigma == 0 {
		return out
	}

	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	for i, v := range img.Pix {
		out.Pix[i] = clampTruncate(float64(v) + dist.Rand())
	}

	return out
}

func clampTruncate(v float64) uint8 {
	switch {
	case v <= models.MinIntensity:
		return models.MinIntensity
	case v >= models.MaxIntensity:
		return models.MaxIntensity
	default:
		return uint8(v)
	}
}

// NewSource returns a PCG source seeded with seed, or with the current time
// when seed is zero.
func NewSource(seed uint64) rand.Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.NewSource(seed)
}
