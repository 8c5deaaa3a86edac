package filters

import (
	"image"

	"gocv.io/x/gocv"

	"denoise-bench/internal/models"
)

// MeanFilter replaces every sample with the average of its square
// neighbourhood (normalized box filter, mirrored border).
type MeanFilter struct {
	size int
}

func NewMeanFilter(size int) *MeanFilter {
	return &MeanFilter{size: normalizeKernelSize(size)}
}

func (m *MeanFilter) Name() string {
	return kernelName("Mean", m.size)
}

func (m *MeanFilter) KernelSize() int {
	return m.size
}

func (m *MeanFilter) Apply(input *models.Image) (*models.Image, error) {
	if err := checkSupport(m.Name(), input, m.size); err != nil {
		return nil, err
	}

	return applyMat(m.Name(), input, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.Blur(src, dst, image.Point{X: m.size, Y: m.size})
	})
}
