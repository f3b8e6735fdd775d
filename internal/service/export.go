package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/voicechat/internal/model"
)

// ErrUnknownFormat is returned for unsupported export formats.
var ErrUnknownFormat = errors.New("unknown export format")

// Export formats.
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// Export is a rendered session.
type Export struct {
	Data        []byte
	ContentType string
	Extension   string
}

// ExportSession renders a session in the given format.
func ExportSession(sess model.ChatSession, format string) (*Export, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		data, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode session: %w", err)
		}
		return &Export{Data: data, ContentType: "application/json", Extension: "json"}, nil

	case FormatYAML, "yml":
		data, err := yaml.Marshal(sess)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session: %w", err)
		}
		return &Export{Data: data, ContentType: "application/yaml", Extension: "yaml"}, nil

	case FormatMarkdown, "md":
		return &Export{Data: []byte(markdown(sess)), ContentType: "text/markdown; charset=utf-8", Extension: "md"}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func markdown(sess model.ChatSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", sess.Title)
	for _, m := range sess.Messages {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", roleHeading(m.Role), strings.TrimSpace(m.Content))
	}
	return b.String()
}

func roleHeading(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "You"
	case model.RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}
