package notify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultTitle is used when a push payload carries no title, or cannot
// be parsed at all.
const DefaultTitle = "New notification"

// DefaultBody is used when a payload parses but has no body text.
const DefaultBody = "You have a new notification"

// Payload is the canonical notification content. Push payloads accept
// "message" as an alias for body and "link" as an alias for url; both
// are normalized here.
type Payload struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Icon               string `json:"icon"`
	Tag                string `json:"tag"`
	URL                string `json:"url"`
	RequireInteraction bool   `json:"requireInteraction"`
}

// PayloadError reports a push payload that could not be parsed as JSON.
// The dispatcher still shows a best-effort notification; the error only
// exists for logging.
type PayloadError struct {
	Raw []byte
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("parse push payload: %v", e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

type wirePayload struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Message            string `json:"message"`
	Icon               string `json:"icon"`
	Tag                string `json:"tag"`
	URL                string `json:"url"`
	Link               string `json:"link"`
	RequireInteraction bool   `json:"requireInteraction"`
}

// ParsePayload decodes a push payload into canonical form. Malformed
// input never drops the notification: the returned Payload carries the
// default title and the raw text as body, alongside a *PayloadError.
func ParsePayload(raw []byte) (Payload, error) {
	var wire wirePayload
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Payload{
			Title: DefaultTitle,
			Body:  strings.TrimSpace(string(raw)),
		}, &PayloadError{Raw: raw, Err: err}
	}

	p := Payload{
		Title:              wire.Title,
		Body:               wire.Body,
		Icon:               wire.Icon,
		Tag:                wire.Tag,
		URL:                wire.URL,
		RequireInteraction: wire.RequireInteraction,
	}
	if p.Body == "" {
		p.Body = wire.Message
	}
	if p.URL == "" {
		p.URL = wire.Link
	}
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if p.Body == "" {
		p.Body = DefaultBody
	}
	return p, nil
}
