package filters

import (
	"image"

	"gocv.io/x/gocv"

	"denoise-bench/internal/models"
)

// GaussianFilter smooths with a Gaussian kernel. Sigma is left for OpenCV
// to derive from the kernel size.
type GaussianFilter struct {
	size int
}

func NewGaussianFilter(size int) *GaussianFilter {
	return &GaussianFilter{size: normalizeKernelSize(size)}
}

func (g *GaussianFilter) Name() string {
	return kernelName("Gaussian", g.size)
}

func (g *GaussianFilter) KernelSize() int {
	return g.size
}

// Sigma returns the standard deviation OpenCV derives for the kernel size
func (g *GaussianFilter) Sigma() float64 {
	return KernelSigma(g.size)
}

func (g *GaussianFilter) Apply(input *models.Image) (*models.Image, error) {
	if err := checkSupport(g.Name(), input, g.size); err != nil {
		return nil, err
	}

	return applyMat(g.Name(), input, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.GaussianBlur(src, dst, image.Point{X: g.size, Y: g.size}, 0, 0, gocv.BorderDefault)
	})
}

// KernelSigma returns 0.3*((size-1)*0.5 - 1) + 0.8
func KernelSigma(size int) float64 {
	return 0.3*((float64(size)-1)*0.5-1) + 0.8
}
