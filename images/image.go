// Package images - Frame definition and conversion utilities.
package images

import (
	"fmt"
	"image"
	"strings"

	"github.com/chewxy/math32"
)

// ChannelOrder is the order in which the three color samples of a pixel are stored.
type ChannelOrder int

const (
	// ChannelOrderRGB stores red, green, blue.
	ChannelOrderRGB ChannelOrder = iota
	// ChannelOrderBGR stores blue, green, red (OpenCV capture order).
	ChannelOrderBGR
)

// String returns the lowercase name of the channel order.
func (o ChannelOrder) String() string {
	switch o {
	case ChannelOrderRGB:
		return "rgb"
	case ChannelOrderBGR:
		return "bgr"
	default:
		return fmt.Sprintf("ChannelOrder(%d)", int(o))
	}
}

// ParseChannelOrder parses "rgb" or "bgr" (case-insensitive).
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgb":
		return ChannelOrderRGB, nil
	case "bgr":
		return ChannelOrderBGR, nil
	default:
		return 0, fmt.Errorf("unknown channel order %q", s)
	}
}

// Depth is the sample type of a frame.
type Depth int

const (
	// DepthUint8 frames keep their samples in Frame.Pix.
	DepthUint8 Depth = iota
	// DepthFloat32 frames keep their samples in Frame.Float.
	DepthFloat32
)

// String returns a short name of the depth.
func (d Depth) String() string {
	switch d {
	case DepthUint8:
		return "uint8"
	case DepthFloat32:
		return "float32"
	default:
		return fmt.Sprintf("Depth(%d)", int(d))
	}
}

// Frame is a single captured picture stored row-major as (height, width, channel).
//
// Exactly one of Pix or Float carries the samples, selected by Depth. Frames
// are produced fresh for every capture and are treated as read-only by every
// consumer.
type Frame struct {
	// Width is the number of columns.
	Width int
	// Height is the number of rows.
	Height int
	// Channels is the number of samples per pixel.
	Channels int
	// Order is the color order the source delivered.
	Order ChannelOrder
	// Depth selects Pix or Float.
	Depth Depth
	// Pix holds 8-bit samples when Depth is DepthUint8.
	Pix []uint8
	// Float holds float samples when Depth is DepthFloat32.
	Float []float32
}

// NewFrame allocates a zeroed 8-bit, 3-channel frame.
//
// Arguments:
//   - width: The number of columns.
//   - height: The number of rows.
//   - order: The channel order of the samples.
//
// Returns:
//   - *Frame: The allocated frame.
func NewFrame(width, height int, order ChannelOrder) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: 3,
		Order:    order,
		Depth:    DepthUint8,
		Pix:      make([]uint8, width*height*3),
	}
}

// NewFloatFrame allocates a zeroed float, 3-channel frame.
func NewFloatFrame(width, height int, order ChannelOrder) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: 3,
		Order:    order,
		Depth:    DepthFloat32,
		Float:    make([]float32, width*height*3),
	}
}

// Len returns the number of samples held by the frame's active buffer.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	if f.Depth == DepthFloat32 {
		return len(f.Float)
	}
	return len(f.Pix)
}

// Empty reports whether the frame has no pixels to work with.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || f.Len() == 0
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Sample returns channel c of pixel (x, y) as a float regardless of depth.
func (f *Frame) Sample(x, y, c int) float32 {
	i := (y*f.Width+x)*f.Channels + c
	if f.Depth == DepthFloat32 {
		return f.Float[i]
	}
	return float32(f.Pix[i])
}

// FrameFromImage converts any image.Image into an 8-bit RGB frame.
//
// Arguments:
//   - img: The image to convert.
//
// Returns:
//   - *Frame: An RGB frame with the image's dimensions.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy(), ChannelOrderRGB)

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < f.Height; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride+(b.Min.X-src.Rect.Min.X)*4:]
			for x := 0; x < f.Width; x++ {
				o := (y*f.Width + x) * 3
				f.Pix[o] = row[x*4]
				f.Pix[o+1] = row[x*4+1]
				f.Pix[o+2] = row[x*4+2]
			}
		}
		return f
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			f.Pix[i] = uint8(r >> 8)
			f.Pix[i+1] = uint8(g >> 8)
			f.Pix[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return f
}

// ToImage renders the frame as an opaque NRGBA image, undoing BGR order.
// Float samples are treated as 0-255 values and clamped.
//
// Returns:
//   - *image.NRGBA: The rendered image.
//   - error: When the frame is empty or not 3-channel.
func (f *Frame) ToImage() (*image.NRGBA, error) {
	if f.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}
	if f.Channels != 3 || f.Len() != f.Width*f.Height*3 {
		return nil, fmt.Errorf("cannot render %d-channel frame with %d samples", f.Channels, f.Len())
	}

	r, b := 0, 2
	if f.Order == ChannelOrderBGR {
		r, b = 2, 0
	}

	img := image.NewNRGBA(f.Bounds())
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			o := y*img.Stride + x*4
			img.Pix[o] = toByte(f.Sample(x, y, r))
			img.Pix[o+1] = toByte(f.Sample(x, y, 1))
			img.Pix[o+2] = toByte(f.Sample(x, y, b))
			img.Pix[o+3] = 0xff
		}
	}
	return img, nil
}

func toByte(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math32.Round(v))
}
