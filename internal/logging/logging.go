// Package logging sets up the process logger and holds the attribute
// helpers shared by the capture and query paths.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common field names for consistent logging.
const (
	FieldChargePoint = "charge_point_id"
	FieldSession     = "session_id"
	FieldUniqueID    = "unique_id"
	FieldAction      = "action"
	FieldError       = "error"
	FieldPath        = "path"
	FieldRemoteAddr  = "remote_addr"
)

// ChargePoint returns a slog attribute for the connection label.
func ChargePoint(id string) slog.Attr {
	return slog.String(FieldChargePoint, id)
}

// Session returns a slog attribute for the per-connection session ID.
func Session(id string) slog.Attr {
	return slog.String(FieldSession, id)
}

// UniqueID returns a slog attribute for an OCPP message uniqueId.
func UniqueID(id string) slog.Attr {
	return slog.String(FieldUniqueID, id)
}

// Action returns a slog attribute for an OCPP action.
func Action(action string) slog.Attr {
	return slog.String(FieldAction, action)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// New builds a logger writing to w. format is "json" or "text".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
