package postprocess

import "image"

// Rescale maps detections from model input coordinates to source frame pixels.
//
// The axes scale independently, matching a plain (non-letterboxed) resize, and
// every box is clamped to the frame. The input slice is not modified.
//
// Arguments:
//   - detections: Detections in model input coordinates.
//   - input: The model input size (width, height).
//   - frame: The source frame size (width, height).
//
// Returns:
//   - []Detection: The rescaled detections, in the same order.
func Rescale(detections []Detection, input, frame image.Point) []Detection {
	out := make([]Detection, len(detections))
	if input.X <= 0 || input.Y <= 0 || frame.X <= 0 || frame.Y <= 0 {
		copy(out, detections)
		return out
	}

	sx := float32(frame.X) / float32(input.X)
	sy := float32(frame.Y) / float32(input.Y)
	for i, d := range detections {
		d.Box.X1 *= sx
		d.Box.X2 *= sx
		d.Box.Y1 *= sy
		d.Box.Y2 *= sy
		d.Box = d.Box.Clamp(float32(frame.X), float32(frame.Y))
		out[i] = d
	}
	return out
}
