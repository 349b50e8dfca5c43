// Package selector picks the recognized text line nearest the image center.
package selector

import (
	"image"
	"math"
	"strings"

	"github.com/artl-app/artl-service/internal/ocr"
)

// Result is the chosen line and its distance to the image center, in pixels
type Result struct {
	Text     string `json:"text"`
	Distance int    `json:"distance"`
}

// Select returns the line whose bounding-box center is closest to the center
// of a width x height image. Ties keep the first line in scan order. The
// second return value is false when lines is empty or no line lies closer
// than width+height.
func Select(lines []ocr.Line, width, height int) (Result, bool) {
	best := Result{Distance: width + height}
	found := false

	cx, cy := float64(width)/2, float64(height)/2
	for _, line := range lines {
		box, text := lineGeometry(line)
		lx := float64(box.Min.X+box.Max.X) / 2
		ly := float64(box.Min.Y+box.Max.Y) / 2

		dist := int(math.Round(math.Hypot(lx-cx, ly-cy)))
		if dist < best.Distance {
			best = Result{Text: text, Distance: dist}
			found = true
		}
	}
	return best, found
}

// SelectBlocks flattens blocks in order and applies Select
func SelectBlocks(blocks []ocr.Block, width, height int) (Result, bool) {
	var lines []ocr.Line
	for _, b := range blocks {
		lines = append(lines, b.Lines...)
	}
	return Select(lines, width, height)
}

// lineGeometry unions element boxes and joins element texts; a line without
// elements falls back to its own box and text.
func lineGeometry(line ocr.Line) (image.Rectangle, string) {
	if len(line.Elements) == 0 {
		return line.Box, line.Text
	}

	var box image.Rectangle
	parts := make([]string, 0, len(line.Elements))
	for _, el := range line.Elements {
		box = box.Union(el.Box)
		parts = append(parts, el.Text)
	}
	return box, strings.Join(parts, " ")
}
