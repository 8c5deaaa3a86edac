package models

import (
	"fmt"
	"image"
	"image/color"
)

const (
	MaxIntensity = 255
	MinIntensity = 0
)

// Image is a fixed-size grid of 8-bit samples stored row-major with
// interleaved channels. Grayscale images carry one channel, color images
// carry three in BGR order as decoded by OpenCV.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewImage allocates a zeroed image with the given shape
func NewImage(width, height, channels int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("unsupported channel count: %d", channels)
	}

	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// NewUniformImage allocates an image with every sample set to value
func NewUniformImage(width, height, channels int, value uint8) (*Image, error) {
	img, err := NewImage(width, height, channels)
	if err != nil {
		return nil, err
	}
	for i := range img.Pix {
		img.Pix[i] = value
	}
	return img, nil
}

// Validate reports whether the image header matches its sample buffer
func (m *Image) Validate() error {
	if m == nil {
		return fmt.Errorf("image is nil")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", m.Width, m.Height)
	}
	if m.Channels != 1 && m.Channels != 3 {
		return fmt.Errorf("unsupported channel count: %d", m.Channels)
	}
	if len(m.Pix) != m.Width*m.Height*m.Channels {
		return fmt.Errorf("sample buffer has %d entries, want %d", len(m.Pix), m.Width*m.Height*m.Channels)
	}
	return nil
}

// Len returns the total number of samples across all channels
func (m *Image) Len() int {
	return len(m.Pix)
}

func (m *Image) offset(x, y, c int) int {
	return (y*m.Width+x)*m.Channels + c
}

// At returns the sample at column x, row y, channel c
func (m *Image) At(x, y, c int) uint8 {
	return m.Pix[m.offset(x, y, c)]
}

// Set stores the sample at column x, row y, channel c
func (m *Image) Set(x, y, c int, v uint8) {
	m.Pix[m.offset(x, y, c)] = v
}

// Clone returns a deep copy
func (m *Image) Clone() *Image {
	pix := make([]uint8, len(m.Pix))
	copy(pix, m.Pix)
	return &Image{
		Width:    m.Width,
		Height:   m.Height,
		Channels: m.Channels,
		Pix:      pix,
	}
}

// NewLike allocates a zeroed image with the same shape as m
func (m *Image) NewLike() *Image {
	return &Image{
		Width:    m.Width,
		Height:   m.Height,
		Channels: m.Channels,
		Pix:      make([]uint8, len(m.Pix)),
	}
}

// SameShape reports whether both images share dimensions and channel count
func (m *Image) SameShape(o *Image) bool {
	if m == nil || o == nil {
		return false
	}
	return m.Width == o.Width && m.Height == o.Height && m.Channels == o.Channels
}

// Equal reports whether both images have the same shape and samples
func (m *Image) Equal(o *Image) bool {
	if !m.SameShape(o) {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// ToStandard converts the grid to a Go image. Three-channel grids are read
// as BGR.
func (m *Image) ToStandard() image.Image {
	bounds := image.Rect(0, 0, m.Width, m.Height)

	if m.Channels == 1 {
		img := image.NewGray(bounds)
		for y := 0; y < m.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+m.Width], m.Pix[y*m.Width:(y+1)*m.Width])
		}
		return img
	}

	img := image.NewRGBA(bounds)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: m.At(x, y, 2),
				G: m.At(x, y, 1),
				B: m.At(x, y, 0),
				A: 255,
			})
		}
	}
	return img
}

// FromStandard converts a Go image into a grid. Gray images keep one channel,
// everything else becomes three-channel BGR with alpha dropped.
func FromStandard(src image.Image) (*Image, error) {
	if src == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if gray, ok := src.(*image.Gray); ok {
		img, err := NewImage(width, height, 1)
		if err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+width]
			copy(img.Pix[y*width:(y+1)*width], row)
		}
		return img, nil
	}

	img, err := NewImage(width, height, 3)
	if err != nil {
		return nil, err
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)
			img.Set(x, y, 0, c.B)
			img.Set(x, y, 1, c.G)
			img.Set(x, y, 2, c.R)
		}
	}
	return img, nil
}
