// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-facedetect/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 // Overlap above which the lower-confidence box is suppressed.
	ClassAware   bool    // If true, suppress only within same class.
}

// ApplyNMS performs greedy Non-Maximum Suppression.
//
// The input is stably sorted by descending confidence (ties keep their input
// order) without modifying the caller's slice. The best remaining detection is
// kept and every remaining detection whose IoU with it exceeds the threshold
// is discarded, until nothing remains.
//
// Arguments:
//   - detections: The candidate detections, in any order.
//   - config: NMS configuration. If ClassAware, suppress only within same class. If false,
//     suppress all overlapping detections. Nil means a zero threshold, class-agnostic.
//
// Returns:
//   - The kept detections in descending confidence order, never nil.
func ApplyNMS(detections []Detection, config *NMSConfig) []Detection {
	n := len(detections)
	if n == 0 {
		return []Detection{}
	}
	if config == nil {
		config = &NMSConfig{}
	}

	sorted := make([]Detection, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != sorted[j].Class {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
