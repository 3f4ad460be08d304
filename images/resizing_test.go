package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientFrame returns a frame whose samples encode position and channel.
func gradientFrame(width, height int, order ChannelOrder) *Frame {
	f := NewFrame(width, height, order)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := (y*width + x) * 3
			f.Pix[o] = uint8(x * 255 / max(width-1, 1))
			f.Pix[o+1] = uint8(y * 255 / max(height-1, 1))
			f.Pix[o+2] = 128
		}
	}
	return f
}

func TestResize_SameSizeIsIdentity(t *testing.T) {
	src := gradientFrame(8, 6, ChannelOrderBGR)

	for _, filter := range []Filter{FilterBilinear, FilterNfntBilinear, FilterLanczos3} {
		t.Run(filter.String(), func(t *testing.T) {
			dst, err := Resize(src, 8, 6, filter)
			require.NoError(t, err)
			assert.Same(t, src, dst)
		})
	}
}

func TestResize_OutputGeometry(t *testing.T) {
	src := gradientFrame(64, 48, ChannelOrderBGR)

	for _, filter := range []Filter{FilterBilinear, FilterNfntBilinear, FilterLanczos3} {
		t.Run(filter.String(), func(t *testing.T) {
			dst, err := Resize(src, 32, 40, filter)
			require.NoError(t, err)
			assert.Equal(t, 32, dst.Width)
			assert.Equal(t, 40, dst.Height)
			assert.Equal(t, 3, dst.Channels)
			assert.Equal(t, ChannelOrderBGR, dst.Order)
			assert.Len(t, dst.Pix, 32*40*3)
		})
	}
}

func TestResize_BilinearConstantStaysConstant(t *testing.T) {
	src := NewFloatFrame(7, 5, ChannelOrderRGB)
	for i := range src.Float {
		src.Float[i] = 42.5
	}

	dst, err := Resize(src, 13, 3, FilterBilinear)
	require.NoError(t, err)
	require.Equal(t, DepthFloat32, dst.Depth)
	for _, v := range dst.Float {
		assert.InDelta(t, 42.5, v, 1e-4)
	}
}

func TestResize_BilinearHalvingAveragesPairs(t *testing.T) {
	// Halving samples exactly between source pixel centres: each output is the
	// mean of a 2x2 block.
	src := NewFloatFrame(4, 2, ChannelOrderRGB)
	values := []float32{0, 10, 20, 30, 40, 50, 60, 70}
	for i, v := range values {
		for c := 0; c < 3; c++ {
			src.Float[i*3+c] = v
		}
	}

	dst, err := Resize(src, 2, 1, FilterBilinear)
	require.NoError(t, err)
	assert.InDelta(t, (0+10+40+50)/4.0, dst.Sample(0, 0, 0), 1e-4)
	assert.InDelta(t, (20+30+60+70)/4.0, dst.Sample(1, 0, 0), 1e-4)
}

func TestResize_BilinearIsDeterministic(t *testing.T) {
	src := gradientFrame(33, 17, ChannelOrderBGR)

	a, err := Resize(src, 20, 20, FilterBilinear)
	require.NoError(t, err)
	b, err := Resize(src, 20, 20, FilterBilinear)
	require.NoError(t, err)
	assert.Equal(t, ComputeFrameChecksum(a), ComputeFrameChecksum(b))
}

func TestResize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		frame  *Frame
		w, h   int
		filter Filter
	}{
		{"nil frame", nil, 4, 4, FilterBilinear},
		{"zero target", gradientFrame(4, 4, ChannelOrderRGB), 0, 4, FilterBilinear},
		{"four channels", &Frame{Width: 2, Height: 2, Channels: 4, Pix: make([]uint8, 16)}, 4, 4, FilterBilinear},
		{"short buffer", &Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]uint8, 5)}, 4, 4, FilterBilinear},
		{"float with nfnt", NewFloatFrame(2, 2, ChannelOrderRGB), 4, 4, FilterLanczos3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resize(tt.frame, tt.w, tt.h, tt.filter)
			assert.Error(t, err)
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("Lanczos3")
	require.NoError(t, err)
	assert.Equal(t, FilterLanczos3, f)

	f, err = ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterBilinear, f)

	_, err = ParseFilter("cubic")
	assert.Error(t, err)
}
