package source

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/spherical/table-extractor/internal/domain"
)

// Formats the model accepts as is. Anything else is re-encoded as PNG.
var passthroughFormats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// FileSource loads an image from disk.
type FileSource struct {
	Path         string
	MaxDimension int
	Validator    *Validator
}

// Load implements domain.ImageSource.
func (s *FileSource) Load(ctx context.Context) (domain.Image, error) {
	validator := s.Validator
	if validator == nil {
		validator = NewValidator(nil)
	}
	if err := validator.ValidateImagePath(s.Path); err != nil {
		return domain.Image{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Image{}, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return domain.Image{}, domain.IOError("failed to read image", err)
	}
	return Prepare(filepath.Base(s.Path), data, s.MaxDimension)
}

// BytesSource serves an image already in memory, such as an upload.
type BytesSource struct {
	Name         string
	Data         []byte
	MaxDimension int
}

// Load implements domain.ImageSource.
func (s *BytesSource) Load(ctx context.Context) (domain.Image, error) {
	if err := ctx.Err(); err != nil {
		return domain.Image{}, err
	}
	if len(s.Data) == 0 {
		return domain.Image{}, domain.ValidationError("image is empty", nil)
	}
	return Prepare(s.Name, s.Data, s.MaxDimension)
}

// Prepare decodes the image header, re-encodes formats the model does not
// take and shrinks images whose longer side exceeds maxDimension. A
// maxDimension of zero disables resizing.
func Prepare(name string, data []byte, maxDimension int) (domain.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, domain.ValidationError("unsupported or corrupt image: "+name, err)
	}

	mime, passthrough := passthroughFormats[format]
	tooLarge := maxDimension > 0 && (cfg.Width > maxDimension || cfg.Height > maxDimension)
	if passthrough && !tooLarge {
		return domain.Image{
			Name:     name,
			Data:     data,
			MIMEType: mime,
			Width:    cfg.Width,
			Height:   cfg.Height,
		}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.Image{}, domain.ValidationError("failed to decode image: "+name, err)
	}
	if tooLarge {
		src = Downscale(src, maxDimension)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return domain.Image{}, domain.IOError("failed to encode image", err)
	}

	b := src.Bounds()
	return domain.Image{
		Name:     name,
		Data:     buf.Bytes(),
		MIMEType: "image/png",
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// Downscale fits img inside a maxDimension square, keeping its aspect
// ratio.
func Downscale(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDimension && h <= maxDimension {
		return img
	}

	if w >= h {
		h = max(1, h*maxDimension/w)
		w = maxDimension
	} else {
		w = max(1, w*maxDimension/h)
		h = maxDimension
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
