// Package transport holds what room adapters and the relay agree on.
package transport

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SenderHeader carries the publishing identity on NATS room messages.
const SenderHeader = "Aegis-Sender"

var subjectUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SubjectToken turns a room name into a single NATS subject token.
func SubjectToken(room string) string {
	token := subjectUnsafe.ReplaceAllString(strings.TrimSpace(room), "_")
	if token == "" {
		return "_"
	}
	return token
}

// Frame is what the relay delivers to room members: the original payload
// bytes and the identity that published them. Data is opaque to the relay
// and is base64 encoded on the wire.
type Frame struct {
	Sender string `json:"sender"`
	Data   []byte `json:"data"`
}

func EncodeFrame(frame Frame) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode relay frame: %w", err)
	}
	return data, nil
}

func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode relay frame: %w", err)
	}
	return frame, nil
}
