package models

import (
	"fmt"
	"math"
	"time"
)

// NoiseKind selects the degradation model applied before filtering
type NoiseKind string

const (
	NoiseSaltPepper NoiseKind = "salt_pepper"
	NoiseGaussian   NoiseKind = "gaussian"
)

const (
	DefaultSaltProb   = 0.02
	DefaultPepperProb = 0.02
	DefaultSigma      = 25.0
)

// NoiseSpec is a tagged noise selection. Only the fields of the selected
// kind are meaningful.
type NoiseSpec struct {
	Kind       NoiseKind `json:"kind"`
	SaltProb   float64   `json:"salt_prob,omitempty"`
	PepperProb float64   `json:"pepper_prob,omitempty"`
	Sigma      float64   `json:"sigma,omitempty"`
}

// SaltPepper builds an impulse noise selection
func SaltPepper(saltProb, pepperProb float64) NoiseSpec {
	return NoiseSpec{Kind: NoiseSaltPepper, SaltProb: saltProb, PepperProb: pepperProb}
}

// Gaussian builds an additive normal noise selection
func Gaussian(sigma float64) NoiseSpec {
	return NoiseSpec{Kind: NoiseGaussian, Sigma: sigma}
}

// Validate checks every parameter of the selected kind against its domain
func (s NoiseSpec) Validate() error {
	switch s.Kind {
	case NoiseSaltPepper:
		if err := validateProbability("salt_prob", s.SaltProb); err != nil {
			return err
		}
		return validateProbability("pepper_prob", s.PepperProb)
	case NoiseGaussian:
		if math.IsNaN(s.Sigma) || math.IsInf(s.Sigma, 0) {
			return &ParameterError{Param: "sigma", Value: s.Sigma, Reason: "must be a finite number"}
		}
		if s.Sigma < 0 {
			return &ParameterError{Param: "sigma", Value: s.Sigma, Reason: "must be >= 0"}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown noise type %q", ErrInvalidParameter, s.Kind)
	}
}

func validateProbability(name string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return &ParameterError{Param: name, Value: p, Reason: "must be within [0, 1]"}
	}
	return nil
}

// FilterResult holds one filter's reconstruction and its score against the
// original image
type FilterResult struct {
	Name  string
	Image *Image
	MSE   float64
	PSNR  float64
}

// FilterFailure records a filter that could not run on the noisy image
type FilterFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// ResultSet is the outcome of one process run in filter bank order
type ResultSet struct {
	Results  []FilterResult
	Failures []FilterFailure
}

// Len returns the number of successful filter results
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Results)
}

// Names returns the successful filter names in canonical order
func (rs *ResultSet) Names() []string {
	if rs == nil {
		return nil
	}
	names := make([]string, len(rs.Results))
	for i, r := range rs.Results {
		names[i] = r.Name
	}
	return names
}

// Lookup finds a result by filter name
func (rs *ResultSet) Lookup(name string) (FilterResult, bool) {
	if rs == nil {
		return FilterResult{}, false
	}
	for _, r := range rs.Results {
		if r.Name == name {
			return r, true
		}
	}
	return FilterResult{}, false
}

// SessionState is the position of a session in its lifecycle
type SessionState string

const (
	StateEmpty     SessionState = "empty"
	StateUploaded  SessionState = "uploaded"
	StateProcessed SessionState = "processed"
)

// Session binds one uploaded image to its latest processing run. Values
// handed out by a store are snapshots and must not be mutated.
type Session struct {
	ID        string
	Filename  string
	Original  *Image
	Noise     *NoiseSpec
	Noisy     *Image
	Results   *ResultSet
	CreatedAt time.Time
	UpdatedAt time.Time
}

// State reports whether the session has completed a process run
func (s *Session) State() SessionState {
	switch {
	case s == nil || s.Original == nil:
		return StateEmpty
	case s.Results == nil:
		return StateUploaded
	default:
		return StateProcessed
	}
}

// UploadResult is returned to the caller after a successful upload
type UploadResult struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Channels  int    `json:"channels"`
	Preview   string `json:"preview"`
}

// FilterSummary is the per-filter entry of a process response. PSNR is
// capped for display; Identical marks an infinite PSNR.
type FilterSummary struct {
	Name      string  `json:"name"`
	Preview   string  `json:"preview"`
	MSE       float64 `json:"mse"`
	PSNR      float64 `json:"psnr"`
	Identical bool    `json:"identical"`
}

// BestFilter is the verdict of a process run
type BestFilter struct {
	Name      string  `json:"name"`
	MSE       float64 `json:"mse"`
	PSNR      float64 `json:"psnr"`
	Identical bool    `json:"identical"`
}

// SummaryStats aggregates the metrics of one run
type SummaryStats struct {
	BestFilter  string  `json:"best_filter"`
	BestMSE     float64 `json:"best_mse"`
	BestPSNR    float64 `json:"best_psnr"`
	WorstFilter string  `json:"worst_filter"`
	AvgMSE      float64 `json:"avg_mse"`
	AvgPSNR     float64 `json:"avg_psnr"`
	MinMSE      float64 `json:"min_mse"`
	MaxMSE      float64 `json:"max_mse"`
	MinPSNR     float64 `json:"min_psnr"`
	MaxPSNR     float64 `json:"max_psnr"`
}

// ProcessResult is returned to the caller after a process run
type ProcessResult struct {
	SessionID    string          `json:"session_id"`
	NoiseType    string          `json:"noise_type"`
	NoisyPreview string          `json:"noisy_preview"`
	PerFilter    []FilterSummary `json:"per_filter"`
	Failures     []FilterFailure `json:"failures,omitempty"`
	Best         BestFilter      `json:"best"`
	Stats        SummaryStats    `json:"stats"`
}

// ExportRow is one line of the tabular export. PSNR may be +Inf.
type ExportRow struct {
	FilterName string  `json:"filter_name"`
	MSE        float64 `json:"mse"`
	PSNR       float64 `json:"psnr"`
}

// SeriesPoint is a single (filter, value) pair of a chart series
type SeriesPoint struct {
	Filter string  `json:"filter"`
	Value  float64 `json:"value"`
}

// ComparisonPoint places one filter on the MSE vs PSNR plane
type ComparisonPoint struct {
	Filter string  `json:"filter"`
	MSE    float64 `json:"mse"`
	PSNR   float64 `json:"psnr"`
}

// ChartSeries holds the three presentation series derived from stored results
type ChartSeries struct {
	MSE        []SeriesPoint     `json:"mse"`
	PSNR       []SeriesPoint     `json:"psnr"`
	Comparison []ComparisonPoint `json:"comparison"`
}
