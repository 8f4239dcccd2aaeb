package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/luismateoh/Aldebaran-sub001/internal/config"
)

// DecodeError means the fetched bytes could not be interpreted as a
// supported image.
type DecodeError struct {
	MimeType string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode image (%s): %v", e.MimeType, e.Err)
	}
	return fmt.Sprintf("unsupported image type: %s", e.MimeType)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TranscodeOutput holds both produced assets plus the dimension metadata
// returned once at transcode time.
type TranscodeOutput struct {
	Main           []byte
	Thumb          []byte
	ContentType    string
	OriginalWidth  int
	OriginalHeight int
	Width          int
	Height         int
}

// Transcoder resizes source images and re-encodes them to WebP.
type Transcoder struct {
	maxEdge   int
	thumbEdge int
	quality   float32
}

func NewTranscoder(cfg config.ImageConfig) *Transcoder {
	t := &Transcoder{
		maxEdge:   cfg.MaxEdge,
		thumbEdge: cfg.ThumbEdge,
		quality:   cfg.WebPQuality,
	}
	if t.maxEdge <= 0 {
		t.maxEdge = 1200
	}
	if t.thumbEdge <= 0 {
		t.thumbEdge = 300
	}
	if t.quality <= 0 || t.quality > 100 {
		t.quality = 80
	}
	return t
}

// Transcode decodes data, produces the optimized asset and its thumbnail.
func (t *Transcoder) Transcode(data []byte) (*TranscodeOutput, error) {
	mime := mimetype.Detect(data)

	img, err := decode(mime.String(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	origW := img.Bounds().Dx()
	origH := img.Bounds().Dy()

	main := shrink(img, t.maxEdge)
	thumb := shrink(img, t.thumbEdge)

	mainBytes, err := t.encode(main)
	if err != nil {
		return nil, fmt.Errorf("encode optimized asset: %w", err)
	}
	thumbBytes, err := t.encode(thumb)
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return &TranscodeOutput{
		Main:           mainBytes,
		Thumb:          thumbBytes,
		ContentType:    "image/webp",
		OriginalWidth:  origW,
		OriginalHeight: origH,
		Width:          main.Bounds().Dx(),
		Height:         main.Bounds().Dy(),
	}, nil
}

func decode(mime string, r io.Reader) (image.Image, error) {
	var img image.Image
	var err error

	switch mime {
	case "image/png":
		img, err = png.Decode(r)
	case "image/jpeg":
		img, err = jpeg.Decode(r)
	case "image/webp":
		img, err = webp.Decode(r)
	default:
		return nil, &DecodeError{MimeType: mime}
	}
	if err != nil {
		return nil, &DecodeError{MimeType: mime, Err: err}
	}
	return img, nil
}

// shrink scales img down so its longest edge is at most edge pixels.
// Images already small enough pass through untouched.
func shrink(img image.Image, edge int) image.Image {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())
	if w == 0 || h == 0 {
		return img
	}

	ratio := w / float64(edge)
	if hRatio := h / float64(edge); hRatio > ratio {
		ratio = hRatio
	}
	if ratio <= 1 {
		return img
	}

	return imaging.Resize(img, int(w/ratio), int(h/ratio), imaging.Lanczos)
}

func (t *Transcoder) encode(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := webp.Encode(buf, img, &webp.Options{
		Lossless: false,
		Quality:  t.quality,
	})
	return buf.Bytes(), err
}
