// Package session keeps uploaded images and their latest processing run,
// keyed by an opaque identifier and expired after a retention window.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"denoise-bench/internal/models"
)

// Store is the session persistence contract used by the pipeline. Sessions
// returned by Get are snapshots; Update replaces the stored run atomically.
type Store interface {
	Create(ctx context.Context, original *models.Image, filename string) (string, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	GetOriginal(ctx context.Context, id string) (*models.Image, error)
	Update(ctx context.Context, id string, spec models.NoiseSpec, noisy *models.Image, results *models.ResultSet) error
	Delete(ctx context.Context, id string) error
}

// Clock returns the current time
type Clock func() time.Time

// NewID returns a random, unguessable session identifier
func NewID() string {
	return uuid.NewString()
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
}

func validateUpdate(noisy *models.Image, results *models.ResultSet) error {
	if err := noisy.Validate(); err != nil {
		return fmt.Errorf("noisy image: %w", err)
	}
	if results == nil {
		return fmt.Errorf("result set is nil")
	}
	return nil
}
