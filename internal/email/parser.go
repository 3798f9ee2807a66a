package email

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/brandon/alert-bridge/pkg/types"
)

// ErrParse is wrapped by Parse when a message is not valid MIME
var ErrParse = errors.New("message parse failed")

// Extracted holds the parts of an alert email the renderer and
// notifier need
type Extracted struct {
	HTMLBody  string
	Image     []byte
	ImageType string
}

// HasImage reports whether a screenshot was found
func (e Extracted) HasImage() bool {
	return e.Image != nil
}

// Parse decodes a raw RFC 822 message into headers and body parts.
// Parts are listed depth first in the order they appear in the message;
// multipart containers are included with empty content.
func Parse(raw []byte) (*types.ParsedEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	parsed := &types.ParsedEmail{
		From:    env.GetHeader("From"),
		Subject: env.GetHeader("Subject"),
	}

	var walk func(p *enmime.Part)
	walk = func(p *enmime.Part) {
		for ; p != nil; p = p.NextSibling {
			parsed.Parts = append(parsed.Parts, types.BodyPart{
				ContentType: strings.ToLower(p.ContentType),
				Content:     p.Content,
			})
			walk(p.FirstChild)
		}
	}
	walk(env.Root)

	return parsed, nil
}

// Extract picks the alert body and screenshot out of a parsed message.
// The first text/html part and the first image part win.
func Extract(msg *types.ParsedEmail) Extracted {
	var out Extracted
	htmlFound := false

	for _, part := range msg.Parts {
		switch {
		case !htmlFound && strings.HasPrefix(part.ContentType, "text/html"):
			out.HTMLBody = string(part.Content)
			htmlFound = true
		case out.Image == nil && strings.HasPrefix(part.ContentType, "image"):
			// keep a non-nil slice for empty images so HasImage stays true
			out.Image = append([]byte{}, part.Content...)
			out.ImageType = part.ContentType
		}
	}

	return out
}
