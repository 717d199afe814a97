package mux

import (
	"log/slog"

	"github.com/casualjim/hubtrigger/internal/broker"
	"github.com/casualjim/hubtrigger/messages"
	"github.com/fogfish/opts"
)

// Dialer connects to hub addresses; see broker.NewDialer for the default.
type Dialer = broker.Dialer

// Transport is a single subscription connection to a hub.
type Transport = broker.Transport

type settings struct {
	dialer  Dialer
	decoder messages.Decoder
	logger  *slog.Logger
}

var (
	// WithDialer sets how hub addresses are turned into transports.
	WithDialer = opts.ForName[settings, Dialer]("dialer")
	// WithDecoder sets how frames are turned into messages.
	WithDecoder = opts.ForName[settings, messages.Decoder]("decoder")
	// WithLogger sets the logger for connections and the registry.
	WithLogger = opts.ForName[settings, *slog.Logger]("logger")
)

func newSettings(options []opts.Option[settings]) (settings, error) {
	var s settings
	if err := opts.Apply(&s, options); err != nil {
		return settings{}, err
	}
	if s.dialer == nil {
		d, err := broker.NewDialer()
		if err != nil {
			return settings{}, err
		}
		s.dialer = d
	}
	if s.decoder == nil {
		s.decoder = messages.JSONDecoder()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}
