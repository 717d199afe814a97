package slogx

import (
	"log/slog"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyHub is the key for hub address attributes.
	KeyHub = "hub"
	// KeyTopic is the key for topic attributes.
	KeyTopic = "topic"
	// KeyRegistration is the key for registration id attributes.
	KeyRegistration = "registration"
)

// LoggerName creates a slog.Attr with the provided logger name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Hub tags a record with the hub address it relates to.
func Hub(address string) slog.Attr {
	return slog.String(KeyHub, address)
}

// Topic tags a record with a bus topic.
func Topic(topic string) slog.Attr {
	return slog.String(KeyTopic, topic)
}

// Registration tags a record with a registration id.
func Registration(id string) slog.Attr {
	return slog.String(KeyRegistration, id)
}

// Named returns logger, or slog.Default when logger is nil, tagged with name.
func Named(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(LoggerName(name))
}
