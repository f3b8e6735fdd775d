// Package rag builds and queries the in-memory retrieval index over loaded
// documents.
package rag

import (
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	markupPattern  = regexp.MustCompile(`(?i)<(html|body|div|p|span|br|h[1-6]|ul|ol|li|table|a|script|style|!doctype)[\s>/]`)
	blockPattern   = regexp.MustCompile(`(?i)</?(p|div|br|li|tr|h[1-6]|section|article|header|footer)[^>]*>`)
	scriptPattern  = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spacesPattern  = regexp.MustCompile(`[ \t]+`)
	newlinePattern = regexp.MustCompile(`\n\s*\n+`)

	strictPolicy = bluemonday.StrictPolicy()
)

// IsMarkup reports whether a document should be treated as HTML-like.
func IsMarkup(name, content string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return markupPattern.MatchString(content)
}

// PlainText returns the document's text with markup removed. Non-markup
// documents are returned unchanged.
func PlainText(name, content string) string {
	if !IsMarkup(name, content) {
		return content
	}

	text := scriptPattern.ReplaceAllString(content, " ")
	text = blockPattern.ReplaceAllString(text, "\n")
	text = strictPolicy.Sanitize(text)
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spacesPattern.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = newlinePattern.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// SplitText splits text into chunks of at most chunkSize runes where
// consecutive chunks share overlap runes.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	totalLen := len(runes)

	if totalLen == 0 {
		return nil
	}
	if chunkSize <= 0 || totalLen <= chunkSize {
		return []string{text}
	}

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []string
	for i := 0; i < totalLen; i += step {
		end := i + chunkSize
		if end > totalLen {
			end = totalLen
		}

		chunks = append(chunks, string(runes[i:end]))

		if end == totalLen {
			break
		}
	}

	return chunks
}
