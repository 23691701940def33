// Package cv implements the mosaic collaborators on OpenCV through gocv:
// ORB features, brute-force Hamming matching, affine warping, camera capture
// and the preview window.
package cv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// grayToMat copies a grayscale raster into a single-channel Mat.
func grayToMat(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), fmt.Errorf("empty image")
	}

	data := img.Pix
	if img.Stride != w || b.Min != (image.Point{}) {
		data = make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(data[y*w:(y+1)*w], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	}
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, data)
}

// matToGray converts an 8-bit Mat with 1, 3 (BGR) or 4 (BGRA) channels to a
// grayscale raster.
func matToGray(mat gocv.Mat) (*image.Gray, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty mat")
	}

	src := mat
	switch mat.Channels() {
	case 1:
	case 3, 4:
		gray := gocv.NewMat()
		defer gray.Close()
		code := gocv.ColorBGRToGray
		if mat.Channels() == 4 {
			code = gocv.ColorBGRAToGray
		}
		gocv.CvtColor(mat, &gray, code)
		src = gray
	default:
		return nil, fmt.Errorf("unsupported channel count %d", mat.Channels())
	}

	h, w := src.Rows(), src.Cols()
	img := image.NewGray(image.Rect(0, 0, w, h))
	if src.IsContinuous() {
		copy(img.Pix, src.ToBytes())
		return img, nil
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := range row {
			row[x] = src.GetUCharAt(y, x)
		}
	}
	return img, nil
}

// alphaToMat copies a mask into a single-channel Mat.
func alphaToMat(mask *image.Alpha) (gocv.Mat, error) {
	return grayToMat(&image.Gray{Pix: mask.Pix, Stride: mask.Stride, Rect: mask.Rect})
}

func matToAlpha(mat gocv.Mat) (*image.Alpha, error) {
	g, err := matToGray(mat)
	if err != nil {
		return nil, err
	}
	return &image.Alpha{Pix: g.Pix, Stride: g.Stride, Rect: g.Rect}, nil
}
