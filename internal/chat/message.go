package chat

import (
	"encoding/json"
	"time"
)

// DefaultTimeFormat renders message times as hour:minute.
const DefaultTimeFormat = "15:04"

// invalidTime is shown for a payload without a usable timestamp.
const invalidTime = "Invalid Date"

// maxTimestampMs is the widest instant a payload may carry, 1e8 days either
// side of the epoch.
const maxTimestampMs = 8.64e15

// ChatMessage is one line of the transcript.
type ChatMessage struct {
	Text         string
	Timestamp    int64 // milliseconds since epoch
	SenderIsSelf bool
	Sender       string
	// Time is the display time, already formatted.
	Time string
}

// Payload is what travels over a session.
type Payload struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// decodePayload reads whatever fields are present. Nothing is rejected: a
// missing message reads "undefined", a non-JSON payload is shown raw.
func decodePayload(data []byte) (text string, ts int64, ok bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if json.Unmarshal(data, &s) == nil {
			return s, 0, false
		}
		return string(data), 0, false
	}

	text = "undefined"
	if m, found := raw["message"]; found {
		var s string
		if json.Unmarshal(m, &s) == nil {
			text = s
		} else {
			text = string(m)
		}
	}

	if t, found := raw["timestamp"]; found {
		var f float64
		if json.Unmarshal(t, &f) == nil && f >= -maxTimestampMs && f <= maxTimestampMs {
			return text, int64(f), true
		}
	}
	return text, 0, false
}

func formatTimestamp(ms int64, layout string) string {
	if layout == "" {
		layout = DefaultTimeFormat
	}
	return time.UnixMilli(ms).Local().Format(layout)
}
