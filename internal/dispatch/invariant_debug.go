//go:build chorusdebug

package dispatch

import "fmt"

func invariant(ok bool, msg string, args ...any) {
	if ok {
		return
	}
	panic(fmt.Sprintf("dispatch: invariant violated: %s %v", msg, args))
}
