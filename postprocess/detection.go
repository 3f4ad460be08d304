// Package postprocess - turns raw model output into final detections.
package postprocess

import "github.com/nvr-ai/go-facedetect/images"

// Detection represents a single detection result.
type Detection struct {
	// The bounding box of the detection in corner form.
	Box images.Rect
	// The confidence score of the detection.
	Confidence float32
	// The index of the winning score field.
	Class int
}
