package images

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// ContentType returns the MIME type of the format.
func (f ImageFormat) ContentType() string {
	switch f {
	case FormatWebP:
		return "image/webp"
	case FormatPNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// ParseImageFormat parses a format name, accepting "jpg" as JPEG.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWebP, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// Encode writes img to w in the given format.
//
// Arguments:
//   - w: The destination writer.
//   - img: The image to encode.
//   - format: The output format.
//   - quality: JPEG/WebP quality in [1, 100]; ignored for PNG.
//
// Returns:
//   - error: An error if the encoder fails.
func Encode(w io.Writer, img image.Image, format ImageFormat, quality int) error {
	switch format {
	case FormatJPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

// Anonymize returns a copy of img where every box is Gaussian-blurred with
// the given sigma. Boxes are clipped to the image; sigma <= 0 returns an
// unmodified copy.
//
// Arguments:
//   - img: The source image, left untouched.
//   - boxes: The regions to blur, in img pixel coordinates.
//   - sigma: The blur strength.
//
// Returns:
//   - *image.NRGBA: The anonymized copy, anchored at the origin.
func Anonymize(img image.Image, boxes []Rect, sigma float64) *image.NRGBA {
	dst := imaging.Clone(img)
	if sigma <= 0 {
		return dst
	}

	bounds := dst.Bounds()
	for _, box := range boxes {
		region := box.ToRectangle().Intersect(bounds)
		if region.Empty() {
			continue
		}
		blurred := imaging.Blur(imaging.Crop(dst, region), sigma)
		dst = imaging.Paste(dst, blurred, region.Min)
	}
	return dst
}
