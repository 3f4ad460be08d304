package images

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
)

// ComputeFrameChecksum generates a deterministic checksum for a Frame.
//
// Two frames with identical geometry, order, depth and samples always produce
// the same checksum, which makes it usable to correlate a logged request with
// the exact pixels it processed.
//
// Arguments:
// - frame: The Frame to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string, or "empty" for an empty frame.
func ComputeFrameChecksum(frame *Frame) string {
	if frame.Empty() {
		return "empty"
	}

	hash := md5.New()
	fmt.Fprintf(hash, "%dx%dx%d/%s/%s:", frame.Width, frame.Height, frame.Channels, frame.Order, frame.Depth)
	if frame.Depth == DepthFloat32 {
		buf := make([]byte, 4*len(frame.Float))
		for i, v := range frame.Float {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		hash.Write(buf)
	} else {
		hash.Write(frame.Pix)
	}
	return fmt.Sprintf("%x", hash.Sum(nil))
}
