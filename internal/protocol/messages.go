// Package protocol defines the control messages exchanged over a room's
// data channel and their JSON wire encoding.
//
// Every payload is a UTF-8 JSON object whose "type" field selects the
// message kind. There is no schema version: receivers drop kinds they do
// not recognize, and a known kind whose fields do not have the expected
// JSON types is rejected as malformed rather than partially applied.
package protocol

import "aegisroom/internal/domain"

// Kind is the wire discriminant of a control message.
type Kind string

const (
	KindTranscript     Kind = "TRANSCRIPT"
	KindRequestHistory Kind = "REQUEST_HISTORY"
	KindHistorySync    Kind = "HISTORY_SYNC"
	KindInterviewEnd   Kind = "INTERVIEW_END"
	KindHumanTakeover  Kind = "HUMAN_TAKEOVER"
	KindCodeSnapshot   Kind = "CODE_SNAPSHOT"
	KindAlgoSubmit     Kind = "ALGO_SUBMIT"
)

// kindTranscription is the newer agent spelling of KindTranscript. It is
// accepted on decode and never produced.
const kindTranscription Kind = "TRANSCRIPTION"

// Message is one decoded control message.
type Message interface {
	Kind() Kind
}

// Transcript carries a new utterance or event.
type Transcript struct {
	Sender domain.Sender
	Text   string
}

// RequestHistory asks peers for their transcript.
type RequestHistory struct{}

// HistorySync answers RequestHistory with a full transcript.
type HistorySync struct {
	History []domain.TranscriptEntry
}

// InterviewEnd announces that the interviewing authority concluded the session.
type InterviewEnd struct {
	Reason string
}

// HumanTakeover announces that a human interviewer has taken control.
type HumanTakeover struct{}

// CodeSnapshot pushes editor content to the candidate. Language is empty
// when the sender did not name one.
type CodeSnapshot struct {
	Code     string
	Language string
}

// AlgoSubmit relays an executed code submission.
type AlgoSubmit struct {
	Code     string
	Language string
	Output   string
}

func (Transcript) Kind() Kind     { return KindTranscript }
func (RequestHistory) Kind() Kind { return KindRequestHistory }
func (HistorySync) Kind() Kind    { return KindHistorySync }
func (InterviewEnd) Kind() Kind   { return KindInterviewEnd }
func (HumanTakeover) Kind() Kind  { return KindHumanTakeover }
func (CodeSnapshot) Kind() Kind   { return KindCodeSnapshot }
func (AlgoSubmit) Kind() Kind     { return KindAlgoSubmit }
