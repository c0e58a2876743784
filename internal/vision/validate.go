package vision

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"path/filepath"
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
	_ "golang.org/x/image/bmp" // register BMP decoder
)

// DefaultMaxImageBytes caps a single upload.
const DefaultMaxImageBytes = 5 << 20

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
}

// ImageInfo describes a decodable image header.
type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
}

// Validate rejects empty, oversized, wrongly named or undecodable images.
// An empty name skips the extension check. maxBytes <= 0 uses DefaultMaxImageBytes.
func Validate(img domain.Image, maxBytes int) (ImageInfo, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if len(img.Data) == 0 {
		return ImageInfo{}, domain.Invalid("image is empty")
	}
	if len(img.Data) > maxBytes {
		return ImageInfo{}, domain.Invalid("image exceeds %d MB limit", maxBytes>>20)
	}
	if img.Name != "" {
		ext := strings.ToLower(filepath.Ext(img.Name))
		if !allowedExtensions[ext] {
			return ImageInfo{}, domain.Invalid("unsupported image type %q: use JPG, PNG, GIF or BMP", ext)
		}
	}
	info, err := Inspect(img.Data)
	if err != nil {
		return ImageInfo{}, domain.Invalid("image could not be read: %v", err)
	}
	return info, nil
}

// Inspect decodes only the image header.
func Inspect(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, err
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format, Bytes: len(data)}, nil
}
