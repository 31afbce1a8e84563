package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"aegisroom/internal/domain"
)

var (
	ErrMalformed   = errors.New("malformed control message")
	ErrUnknownType = errors.New("unknown control message type")
)

// DecodeError reports why a payload could not be turned into a Message.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode control message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s message: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireEnvelope struct {
	Type json.RawMessage `json:"type"`
}

type wireTranscript struct {
	Type   Kind   `json:"type"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type wireEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
}

type wireHistorySync struct {
	Type    Kind         `json:"type"`
	History *[]wireEntry `json:"history"`
}

type wireInterviewEnd struct {
	Type   Kind   `json:"type"`
	Reason string `json:"reason"`
}

type wireCodeSnapshot struct {
	Type     Kind   `json:"type"`
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

type wireAlgoSubmit struct {
	Type     Kind   `json:"type"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Output   string `json:"output"`
}

type wireBare struct {
	Type Kind `json:"type"`
}

// Encode serializes a message to its wire form.
func Encode(msg Message) ([]byte, error) {
	var wire any
	switch m := msg.(type) {
	case Transcript:
		wire = wireTranscript{Type: KindTranscript, Sender: string(m.Sender), Text: m.Text}
	case RequestHistory:
		wire = wireBare{Type: KindRequestHistory}
	case HistorySync:
		entries := make([]wireEntry, 0, len(m.History))
		for _, entry := range m.History {
			entries = append(entries, wireEntry{
				ID:        entry.ID,
				Timestamp: entry.Timestamp,
				Sender:    string(entry.Sender),
				Text:      entry.Text,
			})
		}
		wire = wireHistorySync{Type: KindHistorySync, History: &entries}
	case InterviewEnd:
		wire = wireInterviewEnd{Type: KindInterviewEnd, Reason: m.Reason}
	case HumanTakeover:
		wire = wireBare{Type: KindHumanTakeover}
	case CodeSnapshot:
		wire = wireCodeSnapshot{Type: KindCodeSnapshot, Code: m.Code, Language: m.Language}
	case AlgoSubmit:
		wire = wireAlgoSubmit{Type: KindAlgoSubmit, Code: m.Code, Language: m.Language, Output: m.Output}
	default:
		return nil, fmt.Errorf("encode control message: unsupported message %T", msg)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Kind(), err)
	}
	return data, nil
}

// Decode parses a wire payload. Every failure is returned as a *DecodeError.
func Decode(data []byte) (Message, error) {
	if !utf8.Valid(data) {
		return nil, &DecodeError{Err: fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformed)}
	}

	var envelope wireEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if len(envelope.Type) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("%w: missing type", ErrMalformed)}
	}

	var kind string
	if err := json.Unmarshal(envelope.Type, &kind); err != nil || kind == "" {
		return nil, &DecodeError{Err: fmt.Errorf("%w: type must be a non-empty string", ErrMalformed)}
	}

	switch Kind(kind) {
	case KindTranscript, kindTranscription:
		var wire wireTranscript
		if err := unmarshalKind(data, kind, &wire); err != nil {
			return nil, err
		}
		sender := domain.Sender(wire.Sender)
		if sender == "" {
			sender = domain.SenderSystem
		}
		return Transcript{Sender: sender, Text: wire.Text}, nil

	case KindRequestHistory:
		return RequestHistory{}, nil

	case KindHistorySync:
		var wire wireHistorySync
		if err := unmarshalKind(data, kind, &wire); err != nil {
			return nil, err
		}
		if wire.History == nil {
			return nil, &DecodeError{Type: kind, Err: fmt.Errorf("%w: history must be an array", ErrMalformed)}
		}
		history := make([]domain.TranscriptEntry, 0, len(*wire.History))
		for _, entry := range *wire.History {
			history = append(history, domain.TranscriptEntry{
				ID:        entry.ID,
				Timestamp: entry.Timestamp,
				Sender:    domain.Sender(entry.Sender),
				Text:      entry.Text,
			})
		}
		return HistorySync{History: history}, nil

	case KindInterviewEnd:
		var wire wireInterviewEnd
		if err := unmarshalKind(data, kind, &wire); err != nil {
			return nil, err
		}
		return InterviewEnd{Reason: wire.Reason}, nil

	case KindHumanTakeover:
		return HumanTakeover{}, nil

	case KindCodeSnapshot:
		var wire wireCodeSnapshot
		if err := unmarshalKind(data, kind, &wire); err != nil {
			return nil, err
		}
		return CodeSnapshot{Code: wire.Code, Language: wire.Language}, nil

	case KindAlgoSubmit:
		var wire wireAlgoSubmit
		if err := unmarshalKind(data, kind, &wire); err != nil {
			return nil, err
		}
		return AlgoSubmit{Code: wire.Code, Language: wire.Language, Output: wire.Output}, nil

	default:
		return nil, &DecodeError{Type: kind, Err: ErrUnknownType}
	}
}

func unmarshalKind(data []byte, kind string, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return &DecodeError{Type: kind, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return nil
}
