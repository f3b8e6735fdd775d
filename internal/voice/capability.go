// Package voice bridges speech recognition and synthesis to the
// conversation engine.
package voice

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/voicechat/internal/model"
)

// ErrUnsupported is returned when a voice feature is unavailable.
var ErrUnsupported = errors.New("not supported in this environment")

// Capability is a voice feature resolved once at startup.
type Capability interface {
	Supported() bool
	// Require returns nil when supported and an ErrUnsupported error
	// otherwise.
	Require() error
}

// Supported is an available capability.
type Supported struct{}

func (Supported) Supported() bool { return true }
func (Supported) Require() error  { return nil }

// Unsupported is an unavailable capability.
type Unsupported struct {
	Feature string
}

func (Unsupported) Supported() bool { return false }

func (u Unsupported) Require() error {
	return fmt.Errorf("%s: %w", u.Feature, ErrUnsupported)
}

// Capabilities is the set of resolved voice features.
type Capabilities struct {
	Recognition   Capability
	Synthesis     Capability
	Transcription Capability
}

// CapabilityOptions describes what the host environment provides.
type CapabilityOptions struct {
	// SpeechRecognition means the browser streams recognition results.
	SpeechRecognition bool
	// SpeechSynthesis means the browser can speak text.
	SpeechSynthesis bool
	// Transcription means recorded audio can be transcribed server side.
	Transcription bool
}

// Resolve maps host features to capability variants. Recognition is
// available when either browser recognition or server transcription is.
func Resolve(opts CapabilityOptions) Capabilities {
	return Capabilities{
		Recognition:   variant(opts.SpeechRecognition || opts.Transcription, "speech recognition"),
		Synthesis:     variant(opts.SpeechSynthesis, "speech synthesis"),
		Transcription: variant(opts.Transcription, "audio transcription"),
	}
}

func variant(ok bool, feature string) Capability {
	if ok {
		return Supported{}
	}
	return Unsupported{Feature: feature}
}

// Model returns the API representation of the capabilities.
func (c Capabilities) Model() model.Capabilities {
	return model.Capabilities{
		SpeechRecognition: c.Recognition.Supported(),
		SpeechSynthesis:   c.Synthesis.Supported(),
		AudioUpload:       c.Transcription.Supported(),
	}
}
