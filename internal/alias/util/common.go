package util

import (
	"io"
	"log/slog"
)

// CloseLogged closes c and logs a failure instead of returning it.
func CloseLogged(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		slog.Error("close", "what", what, "err", err)
	}
}
