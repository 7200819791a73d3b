package imageproc

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"

	"snapword/internal/domain"
)

// Processor crops and re-encodes frames stored on an afero filesystem.
// Intermediate crops are kept lossless; only Encode applies JPEG quality.
type Processor struct {
	fs afero.Fs
}

func NewProcessor(fs afero.Fs) *Processor {
	return &Processor{fs: fs}
}

func (p *Processor) Crop(ctx context.Context, frame domain.Frame, rect image.Rectangle) (domain.Frame, error) {
	if err := ctx.Err(); err != nil {
		return domain.Frame{}, err
	}
	img, err := p.load(frame.URI)
	if err != nil {
		return domain.Frame{}, err
	}

	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return domain.Frame{}, fmt.Errorf("crop %v is outside the %dx%d frame", rect, img.Bounds().Dx(), img.Bounds().Dy())
	}
	cropped := imaging.Crop(img, rect)

	uri := derivedPath(frame.URI, fmt.Sprintf("crop%dx%d", rect.Dx(), rect.Dy()), ".png")
	if err := p.save(uri, cropped, imaging.PNG); err != nil {
		return domain.Frame{}, err
	}
	return domain.Frame{URI: uri, Width: rect.Dx(), Height: rect.Dy()}, nil
}

func (p *Processor) Encode(ctx context.Context, frame domain.Frame, quality int) (domain.EncodedImage, error) {
	if err := ctx.Err(); err != nil {
		return domain.EncodedImage{}, err
	}
	if quality <= 0 || quality > 100 {
		return domain.EncodedImage{}, fmt.Errorf("jpeg quality %d out of range", quality)
	}
	img, err := p.load(frame.URI)
	if err != nil {
		return domain.EncodedImage{}, err
	}

	uri := derivedPath(frame.URI, fmt.Sprintf("q%d", quality), ".jpg")
	if err := p.save(uri, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return domain.EncodedImage{}, err
	}
	return domain.EncodedImage{URI: uri}, nil
}

func (p *Processor) load(uri string) (image.Image, error) {
	file, err := p.fs.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	defer file.Close()

	img, err := imaging.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", uri, err)
	}
	return img, nil
}

func (p *Processor) save(uri string, img image.Image, format imaging.Format, opts ...imaging.EncodeOption) error {
	file, err := p.fs.Create(uri)
	if err != nil {
		return fmt.Errorf("create %s: %w", uri, err)
	}
	if err := imaging.Encode(file, img, format, opts...); err != nil {
		file.Close()
		_ = p.fs.Remove(uri)
		return fmt.Errorf("encode %s: %w", uri, err)
	}
	return file.Close()
}

// derivedPath names an output next to its source: frame.jpg -> frame-crop10x20.png.
func derivedPath(uri, suffix, ext string) string {
	base := strings.TrimSuffix(uri, filepath.Ext(uri))
	return base + "-" + suffix + ext
}
