package pipeline

import (
	"golang.org/x/exp/rand"

	"denoise-bench/internal/models"
	"denoise-bench/internal/noise"
)

// Codec turns uploaded bytes into a sample grid and grids into browser
// previews
type Codec interface {
	Decode(data []byte) (*models.Image, error)
	Preview(img *models.Image) (string, error)
}

// SourceFactory hands out the random source for one process run
type SourceFactory func() rand.Source

// SeededSources returns a factory that seeds every run with seed, or with
// the clock when seed is zero
func SeededSources(seed uint64) SourceFactory {
	return func() rand.Source {
		return noise.NewSource(seed)
	}
}
