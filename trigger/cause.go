package trigger

import (
	"fmt"
	"time"

	"github.com/casualjim/hubtrigger/messages"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
)

// CauseTimeLayout renders timestamps in cause descriptions.
const CauseTimeLayout = time.UnixDate

// Cause describes why a build was requested.
type Cause struct {
	// Trigger is the name of the trigger that fired.
	Trigger    string          `json:"trigger"`
	HubAddress string          `json:"hub"`
	Topic      string          `json:"topic"`
	Timestamp  strfmt.DateTime `json:"timestamp"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// NewCause captures msg as the cause of a build for trigger name.
func NewCause(name, hubAddress string, msg messages.Message) Cause {
	c := Cause{
		Trigger:    name,
		HubAddress: hubAddress,
		Topic:      msg.Topic,
		Timestamp:  strfmt.DateTime(msg.Time().UTC()),
	}
	if msg.Body.Exists() {
		c.Body = json.RawMessage(msg.Body.Raw)
	}
	return c
}

// Time returns the message timestamp.
func (c Cause) Time() time.Time {
	return time.Time(c.Timestamp)
}

// ShortDescription is the human readable form shown next to a queued build.
func (c Cause) ShortDescription() string {
	return fmt.Sprintf("Build triggered by message: (%s) %s", c.Time().Format(CauseTimeLayout), c.Topic)
}

func (c Cause) String() string {
	return c.ShortDescription()
}

// Coalesces reports whether other may be folded into c while c is still
// waiting to be scheduled: one pending build per trigger is enough.
func (c Cause) Coalesces(other Cause) bool {
	return c.Trigger == other.Trigger
}
