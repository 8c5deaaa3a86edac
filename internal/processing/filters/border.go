package filters

import (
	"fmt"

	"denoise-bench/internal/models"
)

// replicate repeats the edge sample (aaaaaa|abcdefgh|hhhhhhh)
func replicate(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// checkSupport rejects images whose sides are not larger than the kernel
// radius. OpenCV's mirrored borders are undefined below that size, and
// the same minimum is applied to every filter.
func checkSupport(name string, img *models.Image, size int) error {
	if err := img.Validate(); err != nil {
		return &models.FilterError{Filter: name, Err: err}
	}

	minSide := size/2 + 1
	if img.Width < minSide || img.Height < minSide {
		return &models.FilterError{
			Filter: name,
			Err: fmt.Errorf("%w: %dx%d is below the %dx%d minimum for a %dx%d kernel",
				models.ErrImageTooSmall, img.Width, img.Height, minSide, minSide, size, size),
		}
	}

	return nil
}
