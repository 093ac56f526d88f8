//go:build !chorusdebug

package dispatch

import "log/slog"

// invariant logs a broken internal invariant. Builds tagged chorusdebug panic
// instead.
func invariant(ok bool, msg string, args ...any) {
	if ok {
		return
	}
	slog.Error("dispatch: invariant violated: "+msg, args...)
}
