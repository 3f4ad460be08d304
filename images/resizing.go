package images

import (
	"fmt"
	"image"
	"strings"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
)

// Filter selects the resampling kernel used by Resize.
type Filter int

const (
	// FilterBilinear is a 2x2 bilinear interpolation sampling at pixel
	// centres, matching OpenCV's INTER_LINEAR. Works on both depths.
	FilterBilinear Filter = iota
	// FilterNfntBilinear is nfnt/resize's bilinear kernel, which widens its
	// support when downscaling. 8-bit frames only.
	FilterNfntBilinear
	// FilterLanczos3 is nfnt/resize's Lanczos3 kernel. 8-bit frames only.
	FilterLanczos3
)

// String returns the configuration name of the filter.
func (f Filter) String() string {
	switch f {
	case FilterBilinear:
		return "bilinear"
	case FilterNfntBilinear:
		return "nfnt-bilinear"
	case FilterLanczos3:
		return "lanczos3"
	default:
		return fmt.Sprintf("Filter(%d)", int(f))
	}
}

// ParseFilter parses a filter name as used in configuration files.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bilinear", "linear":
		return FilterBilinear, nil
	case "nfnt-bilinear":
		return FilterNfntBilinear, nil
	case "lanczos3", "lanczos":
		return FilterLanczos3, nil
	default:
		return 0, fmt.Errorf("unknown resize filter %q", s)
	}
}

// Resize resamples a 3-channel frame to exactly width x height.
//
// The result keeps the source's depth and channel order. A frame that already
// has the requested size is returned as is.
//
// Arguments:
//   - src: The frame to resize.
//   - width: The target number of columns.
//   - height: The target number of rows.
//   - filter: The resampling kernel.
//
// Returns:
//   - *Frame: The resized frame.
//   - error: When the frame or target size is unusable, or the filter does not support the depth.
func Resize(src *Frame, width, height int, filter Filter) (*Frame, error) {
	if src.Empty() {
		return nil, fmt.Errorf("cannot resize an empty frame")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	if src.Channels != 3 || src.Len() != src.Width*src.Height*3 {
		return nil, fmt.Errorf("cannot resize %d-channel frame with %d samples", src.Channels, src.Len())
	}
	if src.Width == width && src.Height == height {
		return src, nil
	}

	switch filter {
	case FilterBilinear:
		return resizeBilinear(src, width, height), nil
	case FilterNfntBilinear:
		return resizeNfnt(src, width, height, resize.Bilinear)
	case FilterLanczos3:
		return resizeNfnt(src, width, height, resize.Lanczos3)
	default:
		return nil, fmt.Errorf("unsupported resize filter %s", filter)
	}
}

// axisWeights holds, for every destination index, the two source indices and
// the weight of the second one.
type axisWeights struct {
	lo, hi []int
	frac   []float32
}

// newAxisWeights maps destination pixel centres back onto the source axis:
// fx = (dx + 0.5) * src/dst - 0.5, clamped at both borders.
func newAxisWeights(srcLen, dstLen int) axisWeights {
	w := axisWeights{
		lo:   make([]int, dstLen),
		hi:   make([]int, dstLen),
		frac: make([]float32, dstLen),
	}
	scale := float32(srcLen) / float32(dstLen)
	for d := 0; d < dstLen; d++ {
		f := (float32(d)+0.5)*scale - 0.5
		s := int(math32.Floor(f))
		f -= float32(s)
		if s < 0 {
			s, f = 0, 0
		}
		if s >= srcLen-1 {
			s, f = srcLen-1, 0
		}
		w.lo[d] = s
		w.hi[d] = min(s+1, srcLen-1)
		w.frac[d] = f
	}
	return w
}

func resizeBilinear(src *Frame, width, height int) *Frame {
	xs := newAxisWeights(src.Width, width)
	ys := newAxisWeights(src.Height, height)

	var dst *Frame
	if src.Depth == DepthFloat32 {
		dst = NewFloatFrame(width, height, src.Order)
	} else {
		dst = NewFrame(width, height, src.Order)
	}

	sample := func(x, y, c int) float32 { return src.Sample(x, y, c) }
	if src.Depth == DepthUint8 {
		pix, stride := src.Pix, src.Width*3
		sample = func(x, y, c int) float32 { return float32(pix[y*stride+x*3+c]) }
	}

	for dy := 0; dy < height; dy++ {
		y0, y1, fy := ys.lo[dy], ys.hi[dy], ys.frac[dy]
		for dx := 0; dx < width; dx++ {
			x0, x1, fx := xs.lo[dx], xs.hi[dx], xs.frac[dx]
			o := (dy*width + dx) * 3
			for c := 0; c < 3; c++ {
				top := sample(x0, y0, c)*(1-fx) + sample(x1, y0, c)*fx
				bottom := sample(x0, y1, c)*(1-fx) + sample(x1, y1, c)*fx
				v := top*(1-fy) + bottom*fy
				if dst.Depth == DepthFloat32 {
					dst.Float[o+c] = v
				} else {
					dst.Pix[o+c] = toByte(v)
				}
			}
		}
	}
	return dst
}

// resizeNfnt routes an 8-bit frame through nfnt/resize. The samples are
// packed into an opaque RGBA image without reordering so BGR frames stay BGR.
func resizeNfnt(src *Frame, width, height int, kernel resize.InterpolationFunction) (*Frame, error) {
	if src.Depth != DepthUint8 {
		return nil, fmt.Errorf("filter requires 8-bit samples, got %s", src.Depth)
	}

	rgba := image.NewRGBA(src.Bounds())
	for i, j := 0, 0; i < len(src.Pix); i, j = i+3, j+4 {
		rgba.Pix[j] = src.Pix[i]
		rgba.Pix[j+1] = src.Pix[i+1]
		rgba.Pix[j+2] = src.Pix[i+2]
		rgba.Pix[j+3] = 0xff
	}

	resized := resize.Resize(uint(width), uint(height), rgba, kernel)
	b := resized.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("resampler produced %dx%d, want %dx%d", b.Dx(), b.Dy(), width, height)
	}

	dst := NewFrame(width, height, src.Order)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			dst.Pix[i] = uint8(r >> 8)
			dst.Pix[i+1] = uint8(g >> 8)
			dst.Pix[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return dst, nil
}
