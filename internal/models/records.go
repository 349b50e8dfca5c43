package models

import (
	"time"

	"github.com/google/uuid"
)

// TranslationRecord is one recognized and translated line
type TranslationRecord struct {
	ID             uuid.UUID `json:"id"`
	ImageID        string    `json:"imageId,omitempty"`
	ImagePath      string    `json:"imagePath,omitempty"`
	SourceText     string    `json:"sourceText"`
	TranslatedText string    `json:"translatedText"`
	SourceLanguage string    `json:"sourceLanguage"`
	TargetLanguage string    `json:"targetLanguage"`
	Provider       string    `json:"provider"`
	Distance       int       `json:"distance"` // pixels from image center, -1 when not from an image
	CreatedAt      time.Time `json:"createdAt"`
}

// Message directions
const (
	DirectionIncoming = "in"
	DirectionOutgoing = "out"
)

// BluetoothMessage is one chunk of text sent or received on a session
type BluetoothMessage struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"sessionId"`
	Direction string    `json:"direction"`
	Peer      string    `json:"peer"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProcessResponse represents the output of image processing
type ProcessResponse struct {
	Success     bool   `json:"success"`
	ImageID     string `json:"imageId,omitempty"`
	Text        string `json:"text,omitempty"`
	Distance    int    `json:"distance,omitempty"`
	Translation string `json:"translation,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`

	// Processing metadata
	OCRDuration       float64 `json:"ocrDuration,omitempty"`       // OCR time in seconds
	TranslateDuration float64 `json:"translateDuration,omitempty"` // Translation time in seconds
	TotalDuration     float64 `json:"totalDuration"`               // Total processing time
}
