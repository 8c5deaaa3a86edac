package filters

import (
	"gocv.io/x/gocv"

	"denoise-bench/internal/models"
)

type histogram [256]int

// slidingHistogram runs pick over the intensity histogram of every size x
// size window, using a replicated border. The histogram is updated column
// by column as the window moves along a row.
func slidingHistogram(input *models.Image, size int, pick func(h *histogram) uint8) *models.Image {
	width, height, channels := input.Width, input.Height, input.Channels
	radius := size / 2
	out := input.NewLike()

	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			var h histogram
			for dy := -radius; dy <= radius; dy++ {
				yy := replicate(y+dy, height)
				for dx := -radius; dx <= radius; dx++ {
					h[input.At(replicate(dx, width), yy, c)]++
				}
			}
			out.Set(0, y, c, pick(&h))

			for x := 1; x < width; x++ {
				left := replicate(x-radius-1, width)
				right := replicate(x+radius, width)
				for dy := -radius; dy <= radius; dy++ {
					yy := replicate(y+dy, height)
					h[input.At(left, yy, c)]--
					h[input.At(right, yy, c)]++
				}
				out.Set(x, y, c, pick(&h))
			}
		}
	}

	return out
}

// MedianFilter replaces every sample with the median of its neighbourhood
type MedianFilter struct {
	size int
}

func NewMedianFilter(size int) *MedianFilter {
	return &MedianFilter{size: normalizeKernelSize(size)}
}

func (m *MedianFilter) Name() string {
	return kernelName("Median", m.size)
}

func (m *MedianFilter) KernelSize() int {
	return m.size
}

func (m *MedianFilter) Apply(input *models.Image) (*models.Image, error) {
	if err := checkSupport(m.Name(), input, m.size); err != nil {
		return nil, err
	}

	return applyMat(m.Name(), input, func(src gocv.Mat, dst *gocv.Mat) {
		gocv.MedianBlur(src, dst, m.size)
	})
}

// ModeFilter replaces every sample with the most frequent value of its
// neighbourhood; the smallest value wins ties. OpenCV has no mode filter,
// so this one walks a sliding histogram.
type ModeFilter struct {
	size int
}

func NewModeFilter(size int) *ModeFilter {
	return &ModeFilter{size: normalizeKernelSize(size)}
}

func (m *ModeFilter) Name() string {
	return kernelName("Mode", m.size)
}

func (m *ModeFilter) KernelSize() int {
	return m.size
}

func (m *ModeFilter) Apply(input *models.Image) (*models.Image, error) {
	if err := checkSupport(m.Name(), input, m.size); err != nil {
		return nil, err
	}
	return slidingHistogram(input, m.size, mode), nil
}

func mode(h *histogram) uint8 {
	best := 0
	for v := 1; v < len(h); v++ {
		if h[v] > h[best] {
			best = v
		}
	}
	return uint8(best)
}
