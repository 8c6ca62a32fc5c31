// Package adt models the remote repository-object contract: the operations
// a lockable, versioned backend artifact supports (validate, create, lock,
// update, unlock, activate, check, delete) and the structured responses the
// backend returns. The transport status and the business result are
// decoupled: a 200 response can still carry error-typed entries in its
// payload, so callers must inspect parsed messages, not just the code.
package adt

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/openabap/adtflow/internal/errors"
)

// Message type letters as the backend emits them.
const (
	MessageError   = "E"
	MessageWarning = "W"
	MessageInfo    = "I"
	MessageSuccess = "S"
)

// Message is one structured entry embedded in a response payload.
type Message struct {
	// Type is the severity letter: E, W, I or S.
	Type string
	Text string
	// Line is the source line the entry refers to, 0 when absent.
	Line int
}

func (m Message) String() string {
	if m.Line > 0 {
		return fmt.Sprintf("[%s] %s (line %d)", m.Type, m.Text, m.Line)
	}
	return fmt.Sprintf("[%s] %s", m.Type, m.Text)
}

// Response is the result of one remote operation: transport status plus
// the parsed business-level entries.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
	Messages   []Message
}

// IsSuccess reports whether the transport status is in the 2xx range.
// It says nothing about embedded entries; use Err for that.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorMessages returns the texts of all error-typed entries.
func (r *Response) ErrorMessages() []string {
	return r.messagesOfType(MessageError)
}

// WarningMessages returns the texts of all warning-typed entries.
func (r *Response) WarningMessages() []string {
	return r.messagesOfType(MessageWarning)
}

func (r *Response) messagesOfType(t string) []string {
	var texts []string
	for _, m := range r.Messages {
		if m.Type == t {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// Err builds a ValidationError from the embedded error entries, or nil if
// the response carries none. Warnings ride along as informational context.
func (r *Response) Err() error {
	errs := r.ErrorMessages()
	if len(errs) == 0 {
		return nil
	}
	return errors.NewValidationError("response carries error entries", errs).
		WithWarnings(r.WarningMessages())
}

// messageElements are the payload element names that carry structured
// entries across the backend's response dialects.
var messageElements = map[string]bool{
	"checkMessage": true,
	"message":      true,
	"msg":          true,
}

// parseMessages extracts structured entries from an XML payload. The scan
// is lenient: unknown elements are skipped, non-XML bodies yield no
// entries, and a type attribute is normalized to its leading letter so
// both "E" and "error" classify the same way.
func parseMessages(body []byte) []Message {
	if len(body) == 0 {
		return nil
	}

	var messages []Message
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !messageElements[start.Name.Local] {
			continue
		}

		msg := Message{Type: MessageInfo}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "type", "messageType", "severity":
				msg.Type = normalizeType(attr.Value)
			case "line":
				if n, err := strconv.Atoi(attr.Value); err == nil {
					msg.Line = n
				}
			}
		}
		msg.Text = strings.TrimSpace(elementText(dec, start.Name))
		messages = append(messages, msg)
	}
	return messages
}

// elementText collects all character data inside the current element,
// including nested text holders like shortText, up to the matching end tag.
func elementText(dec *xml.Decoder, name xml.Name) string {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

func normalizeType(raw string) string {
	if raw == "" {
		return MessageInfo
	}
	letter := strings.ToUpper(raw[:1])
	switch letter {
	case MessageError, MessageWarning, MessageInfo, MessageSuccess:
		return letter
	default:
		return MessageInfo
	}
}
