package filters

import (
	"fmt"

	"gocv.io/x/gocv"

	"denoise-bench/internal/models"
	"denoise-bench/internal/opencv/conversion"
)

// applyMat copies input into a Mat, runs op into a fresh destination and
// copies the result back. Both Mats are released before returning.
func applyMat(name string, input *models.Image, op func(src gocv.Mat, dst *gocv.Mat)) (*models.Image, error) {
	src, err := conversion.ImageToMat(input)
	if err != nil {
		return nil, &models.FilterError{Filter: name, Err: err}
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	op(src, &dst)

	if dst.Empty() {
		return nil, &models.FilterError{Filter: name, Err: fmt.Errorf("OpenCV returned an empty result")}
	}

	out, err := conversion.MatToImage(dst)
	if err != nil {
		return nil, &models.FilterError{Filter: name, Err: err}
	}

	return out, nil
}
