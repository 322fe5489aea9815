// Package testutil provides fakes and helpers shared by package tests.
package testutil

import (
	"io"
	"log/slog"

	"github.com/NERVsystems/geoquery/pkg/logging"
)

// NewTestLogger returns a debug-level logger writing JSON lines to w
// through the production zerolog bridge. A nil w discards output.
func NewTestLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	return logging.New(logging.Config{Level: "debug"}, w)
}

// DiscardLogger returns a logger that discards all output.
func DiscardLogger() *slog.Logger {
	return NewTestLogger(nil)
}
