package domain

import (
	"fmt"
	"strings"
	"time"
)

// RawDocument is one scraped page, normalised by the loader.
type RawDocument struct {
	SourceURL string
	Title     string
	Body      string
	FetchedAt time.Time
}

// NewRawDocument creates a new RawDocument instance
func NewRawDocument(sourceURL, title, body string, fetchedAt time.Time) *RawDocument {
	return &RawDocument{
		SourceURL: sourceURL,
		Title:     title,
		Body:      body,
		FetchedAt: fetchedAt,
	}
}

// IsBlank reports whether the body carries no text.
func (d *RawDocument) IsBlank() bool {
	return strings.TrimSpace(d.Body) == ""
}

// ValidateRawDocument validates a RawDocument instance
func ValidateRawDocument(d *RawDocument) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if strings.TrimSpace(d.SourceURL) == "" {
		return ErrMissingSourceURL
	}
	if d.IsBlank() {
		return ErrEmptyDocument
	}
	return nil
}
