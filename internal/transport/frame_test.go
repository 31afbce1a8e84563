package transport

import "testing"

func TestFrameRoundTripKeepsBytes(t *testing.T) {
	t.Parallel()

	raw := []byte{0x00, '{', 0xff}
	encoded, err := EncodeFrame(Frame{Sender: "agent", Data: raw})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	frame, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if frame.Sender != "agent" || string(frame.Data) != string(raw) {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := DecodeFrame([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSubjectToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"interview-1": "interview-1",
		" a b ":       "a_b",
		"x.y>":        "x_y_",
		"":            "_",
	}
	for room, want := range cases {
		if got := SubjectToken(room); got != want {
			t.Fatalf("SubjectToken(%q) = %q, want %q", room, got, want)
		}
	}
}
