package image

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

type Decode func(io.Reader) (image.Image, error)

func getDecoder(file string) (Decode, error) {
	inputExt := filepath.Ext(file)
	var decode Decode
	switch inputExt {
	case ".png":
		decode = png.Decode
	case ".jpg", ".jpeg":
		decode = jpeg.Decode
	case ".webp":
		decode = webp.Decode
	default:
		return nil, fmt.Errorf("image: unsupported extension: %s", inputExt)
	}
	return decode, nil
}

type Encode func(io.Writer, image.Image) error

func getEncoder(file string) (Encode, error) {
	outputExt := filepath.Ext(file)
	var encode Encode
	switch outputExt {
	case ".png":
		encode = png.Encode
	case ".jpg", ".jpeg":
		encode = func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, nil)
		}
	default:
		return nil, fmt.Errorf("image: unsupported extension: %s", outputExt)
	}
	return encode, nil
}

// Load decodes an image file based on its extension.
func Load(file string) (image.Image, error) {
	decode, err := getDecoder(file)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("image: couldn't open file: %w", err)
	}
	defer f.Close()
	img, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("image: couldn't decode file %s: %w", file, err)
	}
	return img, nil
}

// Save encodes an image to a file based on its extension.
func Save(img image.Image, file string) error {
	encode, err := getEncoder(file)
	if err != nil {
		return err
	}
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("image: couldn't create file: %w", err)
	}
	defer f.Close()
	if err := encode(f, img); err != nil {
		return fmt.Errorf("image: couldn't encode file %s: %w", file, err)
	}
	return nil
}

// Downscale resizes an image so its longest side is at most max pixels.
// Images already within the limit are returned unchanged.
func Downscale(img image.Image, max int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= max && h <= max {
		return img
	}
	if w >= h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}
