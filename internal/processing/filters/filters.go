package filters

import (
	"fmt"
	"sync"

	"denoise-bench/internal/models"
)

// Filter is a denoising algorithm evaluated against every noisy image.
// Implementations must not mutate their input and must preserve its shape.
type Filter interface {
	Name() string
	KernelSize() int
	Apply(input *models.Image) (*models.Image, error)
}

// Bank is the ordered set of filters run by a process call. Registration
// order is the canonical order used for output and tie-breaking.
type Bank struct {
	mu      sync.RWMutex
	filters []Filter
	index   map[string]int
}

// NewBank creates a bank holding filters in the given order
func NewBank(filters ...Filter) (*Bank, error) {
	bank := &Bank{
		index: make(map[string]int),
	}

	for _, f := range filters {
		if err := bank.Register(f); err != nil {
			return nil, err
		}
	}

	return bank, nil
}

// DefaultBank returns mean, Gaussian, median and mode filters at 3x3 and
// 7x7 kernels.
func DefaultBank() *Bank {
	bank, err := NewBank(
		NewMeanFilter(3),
		NewMeanFilter(7),
		NewGaussianFilter(3),
		NewGaussianFilter(7),
		NewMedianFilter(3),
		NewMedianFilter(7),
		NewModeFilter(3),
		NewModeFilter(7),
	)
	if err != nil {
		panic(err)
	}
	return bank
}

// Register appends a filter to the end of the bank
func (b *Bank) Register(f Filter) error {
	if f == nil {
		return fmt.Errorf("filter is nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	name := f.Name()
	if _, exists := b.index[name]; exists {
		return fmt.Errorf("filter already registered: %s", name)
	}

	b.index[name] = len(b.filters)
	b.filters = append(b.filters, f)
	return nil
}

// Filters returns the registered filters in canonical order
func (b *Bank) Filters() []Filter {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Filter, len(b.filters))
	copy(result, b.filters)
	return result
}

// Names returns the registered filter names in canonical order
func (b *Bank) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, len(b.filters))
	for i, f := range b.filters {
		names[i] = f.Name()
	}
	return names
}

// Get looks up a filter by name
func (b *Bank) Get(name string) (Filter, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if i, exists := b.index[name]; exists {
		return b.filters[i], nil
	}

	return nil, fmt.Errorf("unknown filter: %s", name)
}

// Len returns the number of registered filters
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.filters)
}

func kernelName(family string, size int) string {
	return fmt.Sprintf("%s %dx%d", family, size, size)
}

func normalizeKernelSize(size int) int {
	if size < 3 {
		return 3
	}
	if size%2 == 0 {
		return size + 1
	}
	return size
}
