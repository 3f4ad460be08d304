package camera

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-facedetect/images"
	"github.com/pkg/errors"
)

var sequenceExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// Sequence is a Source that replays the images of a directory, wrapping
// around after the last one. Files named "frame-<n>" play in numeric order,
// everything else by name. Each Read decodes its file again.
type Sequence struct {
	paths []string
	next  int
}

// OpenSequence lists the images of dir.
//
// Arguments:
//   - dir: A directory holding JPEG, PNG or BMP files.
//
// Returns:
//   - *Sequence: The source.
//   - error: When the directory cannot be read or holds no images.
func OpenSequence(dir string) (*Sequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read image directory %s", dir)
	}

	type entry struct {
		name  string
		index int
	}
	var files []entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !sequenceExtensions[ext] {
			continue
		}
		files = append(files, entry{name: e.Name(), index: frameIndex(e.Name())})
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].index != files[j].index {
			return files[i].index < files[j].index
		}
		return files[i].name < files[j].name
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(dir, f.name)
	}
	return &Sequence{paths: paths}, nil
}

// frameIndex returns n for "frame-<n>.<ext>" and -1 otherwise.
func frameIndex(name string) int {
	trimmed := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(trimmed, "frame-") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(trimmed, "frame-"))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Len returns the number of images in the sequence.
func (s *Sequence) Len() int {
	return len(s.paths)
}

// Read decodes the next image.
func (s *Sequence) Read(ctx context.Context) (*images.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.paths[s.next]
	s.next = (s.next + 1) % len(s.paths)

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	return images.FrameFromImage(img), nil
}

// Close is a no-op.
func (s *Sequence) Close() error {
	return nil
}
