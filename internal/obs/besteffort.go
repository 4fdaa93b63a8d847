package obs

import (
	"fmt"
	"log/slog"
)

// BestEffort runs fn and converts a returned error or a panic into exactly
// one WARN record naming op. The error is returned so callers can branch on
// it; callers never need to log it again.
func BestEffort(log *slog.Logger, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", op, r)
		}
		if err != nil {
			log.Warn(op+" failed", "error", err)
		}
	}()
	return fn()
}
