package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// maxInlineSide caps the longest side of images inlined as data URIs, so the
// encoded payload stays within provider request limits.
const maxInlineSide = 1536

// DataURI encodes a local image file as a base64 data URI suitable for
// inlining in a prediction request. Oversized images are downscaled and
// re-encoded as PNG first.
func DataURI(file string) (string, error) {
	img, err := Load(file)
	if err != nil {
		return "", err
	}
	scaled := Downscale(img, maxInlineSide)
	if scaled == img {
		// Small enough, inline the original bytes to keep the exact encoding.
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("image: couldn't read file: %w", err)
		}
		return fmt.Sprintf("data:%s;base64,%s", mimeType(file), base64.StdEncoding.EncodeToString(b)), nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", fmt.Errorf("image: couldn't encode downscaled image: %w", err)
	}
	return fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

func mimeType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
