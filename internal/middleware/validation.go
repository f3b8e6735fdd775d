package middleware

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Limits applied to request input.
const (
	MaxMessageLength  = 100000
	MaxTitleLength    = 256
	MaxDocumentName   = 255
	MaxTranscriptSize = 10000
)

// ValidateMessageContent validates message content. Blank content is not an
// error here; the engine ignores it.
func ValidateMessageContent(content string) error {
	if len(content) > MaxMessageLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateTitle validates a session title.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("title cannot be empty")
	}
	if len(title) > MaxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}

// ValidateDocumentName validates an uploaded file name.
func ValidateDocumentName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("document name cannot be empty")
	}
	if len(name) > MaxDocumentName {
		return errors.New("document name exceeds maximum length")
	}
	if filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return errors.New("document name must not contain a path")
	}
	if !utf8.ValidString(name) {
		return errors.New("document name must be valid UTF-8")
	}
	return nil
}

// ValidateTranscript validates a recognition result.
func ValidateTranscript(text string) error {
	if len(text) > MaxTranscriptSize {
		return errors.New("transcript exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("transcript must be valid UTF-8")
	}
	return nil
}
