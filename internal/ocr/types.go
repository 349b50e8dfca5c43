// Package ocr defines the OCR collaborator contract and the image handling
// that happens before recognition.
package ocr

import (
	"context"
	"image"
	"sort"
	"strings"
)

// Element is the smallest recognized unit, usually a word
type Element struct {
	Text string          `json:"text"`
	Box  image.Rectangle `json:"box"`
}

// Line is one detected text line. Box is the line's own bounding box as
// reported by the engine; Elements may be empty.
type Line struct {
	Text     string          `json:"text"`
	Box      image.Rectangle `json:"box"`
	Elements []Element       `json:"elements,omitempty"`
}

// Block groups lines the engine considers one paragraph or region
type Block struct {
	Lines []Line `json:"lines"`
}

// Result is the ordered output of one recognition pass
type Result struct {
	Blocks []Block `json:"blocks"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Lines flattens blocks into scan order (block, then line)
func (r *Result) Lines() []Line {
	var lines []Line
	for _, b := range r.Blocks {
		lines = append(lines, b.Lines...)
	}
	return lines
}

// Engine is the OCR collaborator
type Engine interface {
	// Name identifies the engine in logs and health output
	Name() string

	// Recognize runs OCR on encoded image bytes
	Recognize(ctx context.Context, imageData []byte) (*Result, error)

	// Close releases engine resources
	Close() error
}

// Word is a single engine-reported word with its layout position
type Word struct {
	Text     string
	Box      image.Rectangle
	BlockNum int
	ParNum   int
	LineNum  int
	WordNum  int
}

// GroupWords builds the block/line/element hierarchy from flat word boxes.
// Order follows the engine's numbering; empty words are skipped.
func GroupWords(words []Word) []Block {
	sorted := make([]Word, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		sorted = append(sorted, w)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.BlockNum != b.BlockNum {
			return a.BlockNum < b.BlockNum
		}
		if a.ParNum != b.ParNum {
			return a.ParNum < b.ParNum
		}
		if a.LineNum != b.LineNum {
			return a.LineNum < b.LineNum
		}
		return a.WordNum < b.WordNum
	})

	var blocks []Block
	for i, w := range sorted {
		newBlock := i == 0 || w.BlockNum != sorted[i-1].BlockNum
		newLine := newBlock || w.ParNum != sorted[i-1].ParNum || w.LineNum != sorted[i-1].LineNum

		if newBlock {
			blocks = append(blocks, Block{})
		}
		block := &blocks[len(blocks)-1]
		if newLine {
			block.Lines = append(block.Lines, Line{})
		}
		line := &block.Lines[len(block.Lines)-1]

		text := strings.TrimSpace(w.Text)
		line.Elements = append(line.Elements, Element{Text: text, Box: w.Box})
		line.Box = line.Box.Union(w.Box)
		if line.Text == "" {
			line.Text = text
		} else {
			line.Text += " " + text
		}
	}
	return blocks
}
