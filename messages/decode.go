package messages

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMalformed is returned when a frame is not structured data at all.
var ErrMalformed = errors.New("frame is not valid json")

// SchemaError reports a frame that parsed but does not have the expected shape.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid message envelope: %s", e.Reason)
	}
	return fmt.Sprintf("invalid message envelope: field %q %s", e.Field, e.Reason)
}

// Decoder turns a raw frame into a Message.
type Decoder interface {
	Decode(Frame) (Message, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(Frame) (Message, error)

func (f DecoderFunc) Decode(frame Frame) (Message, error) {
	return f(frame)
}

type envelope struct {
	Topic     json.RawMessage `json:"topic"`
	Timestamp json.RawMessage `json:"timestamp"`
	Msg       json.RawMessage `json:"msg"`
}

type jsonDecoder struct{}

// JSONDecoder decodes fedmsg-style JSON envelopes. When the envelope carries no
// topic, the frame subject is used instead.
func JSONDecoder() Decoder {
	return jsonDecoder{}
}

func (jsonDecoder) Decode(frame Frame) (Message, error) {
	if !gjson.ValidBytes(frame.Data) {
		return Message{}, ErrMalformed
	}

	root := gjson.ParseBytes(frame.Data)
	if !root.IsObject() {
		return Message{}, &SchemaError{Reason: "expected an object, got " + root.Type.String()}
	}

	var env envelope
	if err := json.Unmarshal(frame.Data, &env); err != nil {
		return Message{}, &SchemaError{Reason: err.Error()}
	}

	msg := Message{Topic: frame.Subject}
	if len(env.Topic) > 0 {
		topic := gjson.ParseBytes(env.Topic)
		if topic.Type != gjson.String {
			return Message{}, &SchemaError{Field: "topic", Reason: "must be a string"}
		}
		msg.Topic = topic.String()
	}
	if msg.Topic == "" {
		return Message{}, &SchemaError{Field: "topic", Reason: "is required"}
	}

	if len(env.Timestamp) > 0 {
		ts := gjson.ParseBytes(env.Timestamp)
		if ts.Type != gjson.Number {
			return Message{}, &SchemaError{Field: "timestamp", Reason: "must be a number"}
		}
		msg.Timestamp = ts.Float()
	}

	if len(env.Msg) > 0 {
		msg.Body = gjson.ParseBytes(env.Msg)
	}
	return msg, nil
}

// Encode renders a message as a fedmsg-style envelope. body must be valid JSON or
// empty.
func Encode(topic string, timestamp float64, body []byte) ([]byte, error) {
	result := []byte(`{}`)

	var err error
	result, err = sjson.SetBytes(result, "topic", topic)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "timestamp", timestamp)
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return result, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("encode %s: %w", topic, ErrMalformed)
	}
	return sjson.SetRawBytes(result, "msg", body)
}
