// Package messages defines the decoded unit that travels from a hub connection to
// registered consumers, together with the decoder that turns raw transport frames
// into it.
//
// Design decisions:
//   - Immutable values: a Message is produced once per frame and passed by value
//   - Opaque body: the body is kept as a gjson.Result so predicates can address
//     fields by path without the core knowing the schema
//   - Two failure classes: frames that are not structured data at all are
//     reported as ErrMalformed and are routine on a shared bus, while structured
//     frames with the wrong shape are reported as *SchemaError
//
// The default envelope is the fedmsg one:
//
//	{"topic": "org.fedoraproject.prod.buildsys.build.state.change",
//	 "timestamp": 1428570014.0,
//	 "msg": {"name": "kernel", "new": 1}}
//
// Example usage:
//
//	dec := messages.JSONDecoder()
//	msg, err := dec.Decode(messages.Frame{Subject: "pkg.build", Data: raw})
//	switch {
//	case errors.Is(err, messages.ErrMalformed):
//	    // not for us
//	case err != nil:
//	    slog.Error("bad frame", slogx.Error(err))
//	default:
//	    fmt.Println(msg.Topic, msg.Time())
//	}
package messages
