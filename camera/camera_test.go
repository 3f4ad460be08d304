package camera

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nvr-ai/go-facedetect/images"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	delay    time.Duration
	frame    *images.Frame
	err      error
	inFlight int32
	overlaps int32
	reads    int32
	closed   bool
}

func (f *fakeSource) Read(ctx context.Context) (*images.Frame, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	defer atomic.AddInt32(&f.inFlight, -1)
	atomic.AddInt32(&f.reads, 1)

	time.Sleep(f.delay)
	return f.frame, f.err
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func TestGuarded_SerializesReads(t *testing.T) {
	src := &fakeSource{delay: 2 * time.Millisecond, frame: images.NewFrame(4, 4, images.ChannelOrderBGR)}
	g := NewGuarded(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Capture(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), atomic.LoadInt32(&src.reads))
	assert.Zero(t, atomic.LoadInt32(&src.overlaps))
}

func TestGuarded_WaitHonoursContext(t *testing.T) {
	src := &fakeSource{delay: 200 * time.Millisecond, frame: images.NewFrame(4, 4, images.ChannelOrderBGR)}
	g := NewGuarded(src, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Capture(context.Background())
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&src.reads) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Capture(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.reads))

	<-done
}

func TestGuarded_ReleasesOnError(t *testing.T) {
	src := &fakeSource{err: errors.New("device unplugged")}
	g := NewGuarded(src, nil)

	for i := 0; i < 3; i++ {
		_, err := g.Capture(context.Background())
		assert.EqualError(t, err, "device unplugged")
	}

	src.err = nil
	_, err := g.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, g.Close())
	assert.True(t, src.closed)
}

func TestStill(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	img.Set(1, 1, color.NRGBA{R: 9, G: 8, B: 7, A: 255})

	path := filepath.Join(t.TempDir(), "still.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, img))
	require.NoError(t, file.Close())

	s, err := OpenStill(path)
	require.NoError(t, err)

	a, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, a.Width)
	assert.Equal(t, 4, a.Height)
	assert.Equal(t, images.ChannelOrderRGB, a.Order)
	assert.Equal(t, []uint8{9, 8, 7}, a.Pix[(1*6+1)*3:(1*6+1)*3+3])

	a.Pix[0] = 255
	b, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), b.Pix[0], "reads must not share buffers")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = OpenStill(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func writePNG(t *testing.T, path string, width int) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, image.NewNRGBA(image.Rect(0, 0, width, 2))))
	require.NoError(t, file.Close())
}

func TestSequence(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame-10.png"), 10)
	writePNG(t, filepath.Join(dir, "frame-2.png"), 2)
	writePNG(t, filepath.Join(dir, "frame-1.png"), 1)
	writePNG(t, filepath.Join(dir, "b.png"), 4)
	writePNG(t, filepath.Join(dir, "a.png"), 3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	s, err := OpenSequence(dir)
	require.NoError(t, err)
	require.Equal(t, 5, s.Len())

	var widths []int
	for i := 0; i < 6; i++ {
		f, err := s.Read(context.Background())
		require.NoError(t, err)
		widths = append(widths, f.Width)
	}
	assert.Equal(t, []int{3, 4, 1, 2, 10, 3}, widths)
	assert.NoError(t, s.Close())
}

func TestSequence_Errors(t *testing.T) {
	_, err := OpenSequence(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	empty := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(empty, "readme.md"), []byte("x"), 0o600))
	_, err = OpenSequence(empty)
	assert.Error(t, err)

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame-1.png"), 1)
	s, err := OpenSequence(dir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrameIndex(t *testing.T) {
	assert.Equal(t, 12, frameIndex("frame-12.jpg"))
	assert.Equal(t, -1, frameIndex("frame-x.jpg"))
	assert.Equal(t, -1, frameIndex("photo.png"))
}
