package router

import (
	"tanuki/pkg/event"
)

// Extractor locates an engine resume line (the unscoped token form) in free
// text and identifies which engine it belongs to. The engine registry
// implements this by trying each registered runner's pattern.
type Extractor interface {
	ExtractResume(text string) *event.ResumeToken
}

// Resolution is the outcome of resolving an inbound message: the thread it
// runs on and, if the message continues a prior session, the resume token.
type Resolution struct {
	Thread event.ThreadID
	Token  *event.ResumeToken
}

// Router resolves inbound messages to a (thread, token) pair and encodes
// tokens for outbound renders.
type Router struct {
	extractor Extractor
}

// New returns a Router using extractor for unscoped token recognition.
func New(extractor Extractor) *Router {
	return &Router{extractor: extractor}
}

// Resolve determines the thread and resume token for an inbound message.
// Extraction order: scoped then unscoped token in text, then the same in
// replyText (the message being replied to), then none. A scoped token whose
// embedded thread differs from defaultThread fails with
// *CrossThreadTokenError.
func (r *Router) Resolve(text, replyText string, defaultThread event.ThreadID) (Resolution, error) {
	for _, src := range []string{text, replyText} {
		if src == "" {
			continue
		}
		if thread, raw, ok := parseScoped(src); ok {
			if thread != defaultThread {
				return Resolution{}, &CrossThreadTokenError{
					TokenThread:   thread,
					CurrentThread: defaultThread,
				}
			}
			token := &event.ResumeToken{Thread: thread, Raw: raw}
			// An engine resume line alongside the scoped form names the engine.
			if extracted := r.extract(src); extracted != nil && extracted.Raw == raw {
				token.Engine = extracted.Engine
			}
			return Resolution{Thread: defaultThread, Token: token}, nil
		}
		if token := r.extract(src); token != nil {
			// Unscoped tokens are accepted at face value: they belong to the
			// thread the message arrived in.
			token.Thread = defaultThread
			return Resolution{Thread: defaultThread, Token: token}, nil
		}
	}
	return Resolution{Thread: defaultThread}, nil
}

func (r *Router) extract(text string) *event.ResumeToken {
	if r.extractor == nil {
		return nil
	}
	return r.extractor.ExtractResume(text)
}
