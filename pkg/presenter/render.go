package presenter

import (
	"fmt"
	"strings"

	"tanuki/pkg/event"
	"tanuki/pkg/router"
)

// maxShownActions caps how many action lines appear in a progress render;
// older completed actions scroll off first in the source order.
const maxShownActions = 8

// renderProgress produces the text for an in-flight progress message.
func renderProgress(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ %s working…", snap.Engine)
	if snap.ActionCount > 0 {
		fmt.Fprintf(&b, " (%d actions)", snap.ActionCount)
	}
	b.WriteString("\n")

	actions := snap.Actions
	if len(actions) > maxShownActions {
		actions = actions[len(actions)-maxShownActions:]
	}
	for _, st := range actions {
		b.WriteString(actionLine(st))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// actionLine renders one action with a status glyph.
func actionLine(st ActionState) string {
	glyph := "•"
	switch {
	case st.Completed && st.OK != nil && !*st.OK:
		glyph = "✗"
	case st.Completed:
		glyph = "✓"
	}
	detail := st.Action.Detail
	if detail == "" {
		detail = st.Action.Type
	}
	detail = firstLine(detail)
	const maxDetail = 80
	if len(detail) > maxDetail {
		detail = detail[:maxDetail] + "…"
	}
	return fmt.Sprintf("%s %s", glyph, detail)
}

// renderFinal produces the terminal message: answer body plus footer. The
// footer carries the engine resume line and the scoped token; truncation to
// fit maxLen removes from the body, never from the footer.
func renderFinal(answer, status string, resume *event.ResumeToken, resumeLine string, maxLen int) string {
	footer := finalFooter(resume, resumeLine)

	body := strings.TrimSpace(answer)
	if body == "" {
		body = status
	} else if status != "" {
		body = status + "\n\n" + body
	}

	if footer == "" {
		return clip(body, maxLen)
	}
	// Reserve footer space; body yields.
	budget := maxLen - len(footer) - 2
	if budget < 0 {
		budget = 0
	}
	body = clip(body, budget)
	if body == "" {
		return footer
	}
	return body + "\n\n" + footer
}

// finalFooter builds the token footer: the engine's own resume line (if the
// engine provided one) followed by the scoped form, which is always present
// when a token exists.
func finalFooter(resume *event.ResumeToken, resumeLine string) string {
	if resume == nil {
		return ""
	}
	scoped := router.EncodeScoped(*resume)
	if resumeLine == "" {
		return scoped
	}
	return resumeLine + "\n" + scoped
}

// clip truncates s to at most n bytes, appending an ellipsis marker when text
// was removed.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const marker = "…"
	if n <= len(marker) {
		return ""
	}
	cut := n - len(marker)
	// Back off to a rune boundary.
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + marker
}

// firstLine returns the first line of s.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
