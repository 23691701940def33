package cv

import (
	"fmt"
	"image"

	"mosaic-builder/internal/raster"

	"gocv.io/x/gocv"
)

// Camera grabs grayscale frames from a video device.
type Camera struct {
	device int
	vc     *gocv.VideoCapture
	frame  gocv.Mat
}

// OpenCamera opens the numbered video device.
func OpenCamera(device int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	return &Camera{device: device, vc: vc, frame: gocv.NewMat()}, nil
}

// Frame reads a single frame.
func (c *Camera) Frame() (*image.Gray, error) {
	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, fmt.Errorf("camera %d: no frame", c.device)
	}
	return matToGray(c.frame)
}

// Acquire reads n frames and returns their per-pixel mean, which suppresses
// sensor noise before registration.
func (c *Camera) Acquire(n int) (*image.Gray, error) {
	if n < 1 {
		return nil, fmt.Errorf("frame count must be >= 1, got %d", n)
	}
	frames := make([]*image.Gray, 0, n)
	for i := 0; i < n; i++ {
		f, err := c.Frame()
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return raster.Average(frames)
}

func (c *Camera) Close() error {
	c.frame.Close()
	return c.vc.Close()
}
