package cv

import (
	"image"
	"image/color"

	"mosaic-builder/pkg/geometry"

	"gocv.io/x/gocv"
)

var (
	outlineColor = color.RGBA{G: 255, A: 255}
	textColor    = color.RGBA{R: 255, G: 200, A: 255}
)

// PreviewWindow shows the composite with the outline of the live frame.
type PreviewWindow struct {
	win *gocv.Window
	// MaxSize limits the longer displayed side; larger canvases are scaled down.
	MaxSize int
}

func NewPreviewWindow(title string) *PreviewWindow {
	return &PreviewWindow{win: gocv.NewWindow(title), MaxSize: 1200}
}

// Show draws canvas with an optional outline polygon in canvas pixel
// coordinates and a status line, then waits up to delayMS for a key.
// It returns the key code, or -1 when none was pressed.
func (w *PreviewWindow) Show(canvas *image.Gray, outline []geometry.Point2D, status string, delayMS int) int {
	if canvas == nil || canvas.Bounds().Empty() {
		canvas = image.NewGray(image.Rect(0, 0, 320, 240))
	}
	gray, err := grayToMat(canvas)
	if err != nil {
		return w.win.WaitKey(delayMS)
	}
	defer gray.Close()

	img := gocv.NewMat()
	defer img.Close()
	gocv.CvtColor(gray, &img, gocv.ColorGrayToBGR)

	scale := 1.0
	if long := max(img.Cols(), img.Rows()); w.MaxSize > 0 && long > w.MaxSize {
		scale = float64(w.MaxSize) / float64(long)
		gocv.Resize(img, &img, image.Point{}, scale, scale, gocv.InterpolationArea)
	}

	for i := range outline {
		a := outline[i].Scale(scale).Round()
		b := outline[(i+1)%len(outline)].Scale(scale).Round()
		gocv.Line(&img, a, b, outlineColor, 2)
	}
	if status != "" {
		gocv.PutText(&img, status, image.Pt(10, 24), gocv.FontHersheySimplex, 0.6, textColor, 2)
	}

	w.win.IMShow(img)
	return w.win.WaitKey(delayMS)
}

func (w *PreviewWindow) Close() error {
	return w.win.Close()
}
