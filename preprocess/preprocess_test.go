package preprocess

import (
	"fmt"
	"math"
	"testing"

	"github.com/nvr-ai/go-facedetect/images"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(w, h int) ModelConfig {
	cfg := DefaultModelConfig()
	cfg.InputWidth = w
	cfg.InputHeight = h
	return cfg
}

// solidFrame returns a frame whose every pixel holds (a, b, c) in storage order.
func solidFrame(w, h int, order images.ChannelOrder, a, b, c uint8) *images.Frame {
	f := images.NewFrame(w, h, order)
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = a, b, c
	}
	return f
}

func noiseFrame(w, h int) *images.Frame {
	f := images.NewFrame(w, h, images.ChannelOrderBGR)
	seed := uint32(7)
	for i := range f.Pix {
		seed = seed*1664525 + 1013904223
		f.Pix[i] = uint8(seed >> 24)
	}
	return f
}

func TestEncode_ShapeIsAlwaysInputSize(t *testing.T) {
	sizes := []struct{ w, h int }{{640, 480}, {1280, 720}, {320, 320}, {17, 3}}

	for _, size := range sizes {
		frame := noiseFrame(size.w, size.h)
		out, err := Encode(frame, testConfig(64, 48))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 3, 48, 64}, []int(out.Shape()))
		assert.Len(t, out.Data().([]float32), 3*48*64)
	}
}

func TestEncode_IsDeterministic(t *testing.T) {
	frame := noiseFrame(97, 61)
	before := images.ComputeFrameChecksum(frame)

	cfg := testConfig(32, 32)
	cfg.Workers = 4
	a, err := Encode(frame, cfg)
	require.NoError(t, err)

	cfg.Workers = 1
	b, err := Encode(frame, cfg)
	require.NoError(t, err)

	assert.Equal(t, a.Data(), b.Data())
	assert.Equal(t, before, images.ComputeFrameChecksum(frame), "frame must not be modified")
}

func TestEncode_SwapsChannelsAndPacksPlanes(t *testing.T) {
	// BGR storage of pure red.
	frame := solidFrame(4, 4, images.ChannelOrderBGR, 0, 0, 255)

	out, err := Encode(frame, testConfig(4, 4))
	require.NoError(t, err)

	data := out.Data().([]float32)
	plane := 16
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 1.0, data[i], 1e-6, "red plane")
		assert.InDelta(t, 0.0, data[plane+i], 1e-6, "green plane")
		assert.InDelta(t, 0.0, data[2*plane+i], 1e-6, "blue plane")
	}

	// A BGR model keeps the storage order.
	cfg := testConfig(4, 4)
	cfg.ColorMode = images.ChannelOrderBGR
	out, err = Encode(frame, cfg)
	require.NoError(t, err)
	data = out.Data().([]float32)
	assert.InDelta(t, 0.0, data[0], 1e-6)
	assert.InDelta(t, 1.0, data[2*plane], 1e-6)
}

func TestEncode_Normalization(t *testing.T) {
	frame := solidFrame(2, 2, images.ChannelOrderRGB, 0, 51, 255)

	cfg := testConfig(2, 2)
	cfg.Scale = 2.0 / 255.0
	cfg.Offset = -1

	out, err := Encode(frame, cfg)
	require.NoError(t, err)
	data := out.Data().([]float32)
	assert.InDelta(t, -1.0, data[0], 1e-6)
	assert.InDelta(t, -0.6, data[4], 1e-6)
	assert.InDelta(t, 1.0, data[8], 1e-6)
}

func TestEncode_FloatFrames(t *testing.T) {
	frame := images.NewFloatFrame(3, 3, images.ChannelOrderRGB)
	for i := range frame.Float {
		frame.Float[i] = 0.5
	}

	cfg := testConfig(6, 6)
	cfg.Scale = 1
	out, err := Encode(frame, cfg)
	require.NoError(t, err)
	for _, v := range out.Data().([]float32) {
		assert.InDelta(t, 0.5, v, 1e-6)
	}
}

func TestEncode_Errors(t *testing.T) {
	nan := float32(math.NaN())

	nanFrame := images.NewFloatFrame(2, 2, images.ChannelOrderRGB)
	nanFrame.Float[5] = nan

	tests := []struct {
		name   string
		frame  *images.Frame
		modify func(*ModelConfig)
		want   error
	}{
		{"nil frame", nil, nil, ErrEmptyFrame},
		{"zero width", &images.Frame{Width: 0, Height: 4, Channels: 3, Pix: make([]uint8, 12)}, nil, ErrEmptyFrame},
		{"no samples", &images.Frame{Width: 4, Height: 4, Channels: 3}, nil, ErrEmptyFrame},
		{"grayscale", &images.Frame{Width: 2, Height: 2, Channels: 1, Pix: make([]uint8, 4)}, nil, ErrUnsupportedFormat},
		{"short buffer", &images.Frame{Width: 2, Height: 2, Channels: 3, Pix: make([]uint8, 11)}, nil, ErrUnsupportedFormat},
		{"unknown order", &images.Frame{Width: 2, Height: 2, Channels: 3, Order: 9, Pix: make([]uint8, 12)}, nil, ErrUnsupportedFormat},
		{
			"float frame with lanczos",
			images.NewFloatFrame(2, 2, images.ChannelOrderRGB),
			func(c *ModelConfig) { c.Filter = images.FilterLanczos3 },
			ErrUnsupportedFormat,
		},
		{"nan sample", nanFrame, func(c *ModelConfig) { c.InputWidth, c.InputHeight = 2, 2 }, ErrInvalidValue},
		{"nan scale", solidFrame(2, 2, images.ChannelOrderRGB, 1, 1, 1), func(c *ModelConfig) { c.Scale = nan }, ErrInvalidValue},
		{
			"infinite offset",
			solidFrame(2, 2, images.ChannelOrderRGB, 1, 1, 1),
			func(c *ModelConfig) { c.Offset = float32(math.Inf(1)) },
			ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(8, 8)
			if tt.modify != nil {
				tt.modify(&cfg)
			}

			out, err := Encode(tt.frame, cfg)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var encErr *EncodeError
			require.True(t, errors.As(err, &encErr))
			assert.Equal(t, tt.want.(*EncodeError).Kind, encErr.Kind)
		})
	}
}

func TestEncode_InvalidInputSize(t *testing.T) {
	_, err := Encode(noiseFrame(4, 4), testConfig(0, 4))
	require.Error(t, err)

	var encErr *EncodeError
	assert.False(t, errors.As(err, &encErr))
}

func BenchmarkEncode(b *testing.B) {
	frame := noiseFrame(1280, 720)
	for _, workers := range []int{1, 4} {
		cfg := testConfig(640, 640)
		cfg.Workers = workers
		p := NewPreprocessor(cfg)
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := p.Encode(frame); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
