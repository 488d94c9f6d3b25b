package media

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/Laisky/errors/v2"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// ImageFormat is an image codec this gateway knows how to decode/encode.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatGIF  ImageFormat = "gif"
	FormatWebP ImageFormat = "webp"
)

// DecodeImage decodes raw bytes using the format implied by their sniffed
// MIME type. WebP decoding is read-only (golang.org/x/image/webp has no
// encoder), matching that package's own limitation.
func DecodeImage(data []byte) (image.Image, ImageFormat, error) {
	mimeType := SniffMIME(data)
	r := bytesReader(data)
	switch {
	case mimeType == "image/png":
		img, err := png.Decode(r)
		return img, FormatPNG, errors.Wrap(err, "decode png")
	case mimeType == "image/jpeg":
		img, err := jpeg.Decode(r)
		return img, FormatJPEG, errors.Wrap(err, "decode jpeg")
	case mimeType == "image/gif":
		img, err := gif.Decode(r)
		return img, FormatGIF, errors.Wrap(err, "decode gif")
	case mimeType == "image/webp":
		img, err := webp.Decode(r)
		return img, FormatWebP, errors.Wrap(err, "decode webp")
	default:
		return nil, "", errors.Errorf("unsupported image mime type %q", mimeType)
	}
}

// EncodeImage encodes img in the requested format. WebP output is rejected
// since golang.org/x/image/webp is decode-only; callers that need a WebP
// result should keep the original bytes instead of re-encoding.
func EncodeImage(img image.Image, format ImageFormat, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, errors.Wrap(err, "encode png")
		}
	case FormatJPEG:
		quality := jpegQuality
		if quality <= 0 {
			quality = 90
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, errors.Wrap(err, "encode jpeg")
		}
	case FormatGIF:
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, errors.Wrap(err, "encode gif")
		}
	default:
		return nil, errors.Errorf("unsupported output image format %q", format)
	}
	return buf.Bytes(), nil
}

// Resize scales img to exactly (width, height) using a high-quality
// Catmull-Rom scaler, matching the resample quality golang.org/x/image/draw
// documents as its best general-purpose kernel.
func Resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Reformat decodes src and re-encodes it in targetFormat, resizing first
// when targetWidth/targetHeight are both positive. This backs spec.md
// §4.5's "when the output format differs from the provider's native
// format, the image is transcoded (reformat+compress)".
func Reformat(src []byte, targetFormat ImageFormat, targetWidth, targetHeight, jpegQuality int) ([]byte, error) {
	img, _, err := DecodeImage(src)
	if err != nil {
		return nil, err
	}
	if targetWidth > 0 && targetHeight > 0 {
		img = Resize(img, targetWidth, targetHeight)
	}
	return EncodeImage(img, targetFormat, jpegQuality)
}
