package router

import (
	"fmt"

	"tanuki/pkg/event"
)

// CrossThreadTokenError reports a scoped resume token used in a thread other
// than the one it is bound to. Resuming an agent session against the wrong
// working directory would corrupt that session's filesystem assumptions, so
// the token is rejected rather than silently reassigned.
type CrossThreadTokenError struct {
	TokenThread   event.ThreadID
	CurrentThread event.ThreadID
}

func (e *CrossThreadTokenError) Error() string {
	return fmt.Sprintf("resume token belongs to thread %s, not %s",
		e.TokenThread, e.CurrentThread)
}
