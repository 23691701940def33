package raster

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
)

// Output formats understood by Encode.
const (
	FormatTIFF = "tiff"
	FormatPNG  = "png"
)

// Load decodes an image file and converts it to grayscale.
func Load(path string) (*image.Gray, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}

	if g, ok := img.(*image.Gray); ok {
		return Normalize(g), nil
	}
	return ToGray(img), nil
}

// Encode writes img in the named format.
func Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatPNG:
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Extension returns the file extension, with dot, for an output format.
func Extension(format string) string {
	switch format {
	case FormatPNG:
		return ".png"
	default:
		return ".tif"
	}
}

var inputExtensions = map[string]bool{
	".tif": true, ".tiff": true, ".png": true, ".jpg": true, ".jpeg": true,
}

// IsSupportedFormat reports whether Load can decode path, judged by its
// extension.
func IsSupportedFormat(path string) bool {
	return inputExtensions[strings.ToLower(filepath.Ext(path))]
}
