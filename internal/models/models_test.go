package models

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageRejectsBadShapes(t *testing.T) {
	_, err := NewImage(0, 4, 1)
	assert.Error(t, err)

	_, err = NewImage(4, 4, 2)
	assert.Error(t, err)

	img, err := NewImage(3, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 18, img.Len())
	assert.NoError(t, img.Validate())
}

func TestImageAccessors(t *testing.T) {
	img, err := NewImage(3, 2, 3)
	require.NoError(t, err)

	img.Set(2, 1, 1, 42)
	assert.Equal(t, uint8(42), img.At(2, 1, 1))
	assert.Equal(t, uint8(42), img.Pix[(1*3+2)*3+1])

	clone := img.Clone()
	clone.Set(0, 0, 0, 7)
	assert.Equal(t, uint8(0), img.At(0, 0, 0))
	assert.True(t, img.SameShape(clone))
	assert.False(t, img.Equal(clone))
}

func TestStandardRoundTripGray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8(x*10 + y)})
		}
	}

	img, err := FromStandard(src)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Channels)
	assert.Equal(t, uint8(21), img.At(2, 1, 0))

	back, ok := img.ToStandard().(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, src.Pix, back.Pix)
}

func TestStandardColorIsBGR(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	img, err := FromStandard(src)
	require.NoError(t, err)
	assert.Equal(t, []uint8{30, 20, 10}, img.Pix)

	out := img.ToStandard().(*image.RGBA)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, out.RGBAAt(0, 0))
}

func TestNoiseSpecValidate(t *testing.T) {
	tests := []struct {
		name  string
		spec  NoiseSpec
		param string
	}{
		{"negative sigma", Gaussian(-1), "sigma"},
		{"nan sigma", Gaussian(math.NaN()), "sigma"},
		{"salt above one", SaltPepper(1.5, 0), "salt_prob"},
		{"pepper below zero", SaltPepper(0, -0.1), "pepper_prob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)

			var perr *ParameterError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.param, perr.Param)
		})
	}

	assert.NoError(t, Gaussian(0).Validate())
	assert.NoError(t, SaltPepper(1, 1).Validate())
	assert.ErrorIs(t, NoiseSpec{Kind: "speckle"}.Validate(), ErrInvalidParameter)
}

func TestSessionState(t *testing.T) {
	var s *Session
	assert.Equal(t, StateEmpty, s.State())

	img, _ := NewImage(2, 2, 1)
	s = &Session{Original: img}
	assert.Equal(t, StateUploaded, s.State())

	s.Results = &ResultSet{}
	assert.Equal(t, StateProcessed, s.State())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "SessionNotFound", ErrorKind(fmt.Errorf("load: %w", ErrSessionNotFound)))
	assert.Equal(t, "ImageTooSmall", ErrorKind(&FilterError{Filter: "Mean 7x7", Err: ErrImageTooSmall}))
	assert.Equal(t, "InvalidParameter", ErrorKind(&ParameterError{Param: "sigma"}))
	assert.Equal(t, "Internal", ErrorKind(errors.New("boom")))
	assert.Equal(t, "", ErrorKind(nil))
}
