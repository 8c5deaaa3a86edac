package conversion

import (
	"encoding/base64"
	"fmt"
	"runtime"

	"gocv.io/x/gocv"

	"denoise-bench/internal/models"
)

const pngDataURIPrefix = "data:image/png;base64,"

// Decode reads an encoded raster image with OpenCV. Color input is
// converted to a single gray channel when grayscale is set, otherwise it
// is kept as three BGR channels.
func Decode(data []byte, grayscale bool) (*models.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", models.ErrDecode)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	defer mat.Close()

	if err := validateMat(mat, "decode"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}

	if !grayscale {
		return MatToImage(mat)
	}

	gray, err := ConvertToGrayscale(mat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	defer gray.Close()

	return MatToImage(gray)
}

// ConvertToGrayscale converts a BGR or BGRA Mat to a new single-channel Mat.
// The caller owns the result.
func ConvertToGrayscale(src gocv.Mat) (gocv.Mat, error) {
	if err := validateMat(src, "grayscale conversion"); err != nil {
		return gocv.NewMat(), err
	}

	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&dst)
	case 3:
		gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToGray)
	default:
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	return dst, nil
}

// MatToImage copies an 8-bit Mat with one or three channels into a grid
func MatToImage(src gocv.Mat) (*models.Image, error) {
	if err := validateMat(src, "Mat to image conversion"); err != nil {
		return nil, err
	}

	switch src.Type() {
	case gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3:
	default:
		return nil, fmt.Errorf("unsupported Mat type: %v", src.Type())
	}

	img, err := models.NewImage(src.Cols(), src.Rows(), src.Channels())
	if err != nil {
		return nil, err
	}

	mat := src
	if !src.IsContinuous() {
		mat = src.Clone()
		defer mat.Close()
	}

	data := mat.ToBytes()
	if len(data) != len(img.Pix) {
		return nil, fmt.Errorf("Mat holds %d bytes, want %d", len(data), len(img.Pix))
	}
	copy(img.Pix, data)

	return img, nil
}

// ImageToMat copies a grid into a new Mat owned by the caller
func ImageToMat(img *models.Image) (gocv.Mat, error) {
	if err := img.Validate(); err != nil {
		return gocv.NewMat(), err
	}

	matType := gocv.MatTypeCV8UC1
	if img.Channels == 3 {
		matType = gocv.MatTypeCV8UC3
	}

	view, err := gocv.NewMatFromBytes(img.Height, img.Width, matType, img.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create Mat: %w", err)
	}
	defer view.Close()

	// The view borrows img.Pix; clone so the result owns its samples.
	mat := view.Clone()
	runtime.KeepAlive(img.Pix)

	return mat, nil
}

// EncodePNG encodes the grid as PNG
func EncodePNG(img *models.Image) ([]byte, error) {
	mat, err := ImageToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("png encode failed: %w", err)
	}
	defer buf.Close()

	encoded := buf.GetBytes()
	out := make([]byte, len(encoded))
	copy(out, encoded)

	return out, nil
}

// PreviewDataURI encodes the grid as a base64 PNG data URI for browsers
func PreviewDataURI(img *models.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return pngDataURIPrefix + base64.StdEncoding.EncodeToString(data), nil
}

func validateMat(mat gocv.Mat, operation string) error {
	if mat.Empty() {
		return fmt.Errorf("Mat is empty for operation: %s", operation)
	}
	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("Mat has invalid dimensions %dx%d for operation: %s",
			mat.Cols(), mat.Rows(), operation)
	}
	return nil
}

// Codec binds Decode and PreviewDataURI to a grayscale policy
type Codec struct {
	Grayscale bool
}

func (c Codec) Decode(data []byte) (*models.Image, error) {
	return Decode(data, c.Grayscale)
}

func (c Codec) Preview(img *models.Image) (string, error) {
	return PreviewDataURI(img)
}
