package messages

import (
	"math"
	"time"

	"github.com/tidwall/gjson"
)

// Message is a decoded frame received from a hub.
type Message struct {
	// Topic is the string the transport filtered on.
	Topic string
	// Timestamp is expressed in seconds since the unix epoch.
	Timestamp float64
	// Body is the structured payload. Callers must treat it as read-only.
	Body gjson.Result
}

// Time converts Timestamp to a time.Time, keeping sub-second precision.
func (m Message) Time() time.Time {
	sec, frac := math.Modf(m.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Get looks up a gjson path inside the body.
func (m Message) Get(path string) gjson.Result {
	return m.Body.Get(path)
}

// Frame is the raw unit handed over by a transport, before decoding.
type Frame struct {
	Subject string
	Data    []byte
}

// Empty reports whether the frame carries no payload.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}
