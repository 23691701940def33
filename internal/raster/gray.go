// Package raster provides grayscale image helpers: conversion, frame
// averaging, warping into an output frame, masked blending and file IO.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
)

// ErrEmpty reports a nil or zero-area raster.
var ErrEmpty = errors.New("empty raster")

// Check returns ErrEmpty unless img has positive width and height.
func Check(img image.Image) error {
	if img == nil {
		return ErrEmpty
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmpty, b.Dx(), b.Dy())
	}
	return nil
}

// ToGray converts any image to an 8-bit grayscale raster anchored at the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Normalize returns img anchored at the origin, copying only when needed.
func Normalize(img *image.Gray) *image.Gray {
	if img.Rect.Min == (image.Point{}) {
		return img
	}
	return ToGray(img)
}

// Clone returns a deep copy of img.
func Clone(img *image.Gray) *image.Gray {
	if img == nil {
		return nil
	}
	out := &image.Gray{
		Pix:    append([]uint8(nil), img.Pix...),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	return out
}

// Average returns the per-pixel mean of equally sized frames, rounded to
// the nearest level. Averaging several exposures suppresses sensor noise.
func Average(frames []*image.Gray) (*image.Gray, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames to average", ErrEmpty)
	}
	if err := Check(frames[0]); err != nil {
		return nil, err
	}
	w, h := frames[0].Bounds().Dx(), frames[0].Bounds().Dy()
	for i, f := range frames[1:] {
		if f == nil || f.Bounds().Dx() != w || f.Bounds().Dy() != h {
			return nil, fmt.Errorf("frame %d size differs from %dx%d", i+1, w, h)
		}
	}

	sum := make([]int, w*h)
	for _, f := range frames {
		b := f.Bounds()
		for y := 0; y < h; y++ {
			row := f.Pix[f.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				sum[y*w+x] += int(row[x])
			}
		}
	}

	n := len(frames)
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = uint8((sum[y*w+x] + n/2) / n)
		}
	}
	return out, nil
}

// Equal reports whether two rasters have the same bounds and pixels.
func Equal(a, b *image.Gray) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Rect != b.Rect {
		return false
	}
	w := a.Rect.Dx()
	for y := a.Rect.Min.Y; y < a.Rect.Max.Y; y++ {
		ra := a.Pix[a.PixOffset(a.Rect.Min.X, y):][:w]
		rb := b.Pix[b.PixOffset(b.Rect.Min.X, y):][:w]
		for x := range ra {
			if ra[x] != rb[x] {
				return false
			}
		}
	}
	return true
}
