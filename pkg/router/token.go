// Package router encodes, parses, and scopes resume tokens, and decides which
// thread and engine an inbound message belongs to. Tokens have two textual
// forms: the unscoped engine resume line (for example `claude --resume abc`)
// and the scoped form embedding thread identity (`thread:<id>:<raw>`, or
// `general:<raw>` for the reserved workspace thread). Replies rendered by the
// bridge always carry the scoped form so they stay unambiguous when copied
// out of context.
package router

import (
	"fmt"
	"regexp"

	"tanuki/pkg/event"
)

// scopedRe matches a scoped token anywhere in message text. Raw tokens are
// engine session identifiers: no whitespace, no backticks.
var scopedRe = regexp.MustCompile("(?m)`?(?:thread:([A-Za-z0-9-]+):|general:)([^`\\s:]+)`?")

// EncodeScoped renders the scoped textual form of a token. The general thread
// uses its reserved alias instead of a thread id.
func EncodeScoped(token event.ResumeToken) string {
	if token.Thread == event.General || token.Thread == "" {
		return fmt.Sprintf("`general:%s`", token.Raw)
	}
	return fmt.Sprintf("`thread:%s:%s`", token.Thread, token.Raw)
}

// parseScoped finds the last scoped token in text. It returns the embedded
// thread (event.General for the reserved alias) and the raw token.
func parseScoped(text string) (event.ThreadID, string, bool) {
	matches := scopedRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", "", false
	}
	m := matches[len(matches)-1]
	if m[1] == "" {
		return event.General, m[2], true
	}
	return event.ThreadID(m[1]), m[2], true
}
