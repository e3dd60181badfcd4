package bridge

import (
	"sync"
	"time"

	"tanuki/pkg/transport"
)

// debouncer coalesces consecutive messages per topic into one prompt. People
// often split a request across several quick messages; spawning an engine per
// fragment wastes runs and splits context.
type debouncer struct {
	window time.Duration
	emit   func(transport.Update, string)

	mu      sync.Mutex
	pending map[int64]*pendingBatch
}

type pendingBatch struct {
	texts  []string
	merged transport.Update
	timer  *time.Timer
}

func newDebouncer(window time.Duration, emit func(update transport.Update, text string)) *debouncer {
	return &debouncer{
		window:  window,
		emit:    emit,
		pending: make(map[int64]*pendingBatch),
	}
}

// Add queues one message. The batch fires after the window elapses with no
// further messages on the topic. A zero window emits immediately.
func (d *debouncer) Add(u transport.Update) {
	if d.window <= 0 {
		d.emit(u, u.Text)
		return
	}

	d.mu.Lock()
	b := d.pending[u.TopicID]
	if b == nil {
		b = &pendingBatch{merged: u}
		d.pending[u.TopicID] = b
		topic := u.TopicID
		b.timer = time.AfterFunc(d.window, func() { d.Flush(topic) })
	} else {
		b.timer.Reset(d.window)
		// Reply context anchors the batch; the first reply wins.
		if b.merged.ReplyToID == 0 && u.ReplyToID != 0 {
			b.merged.ReplyToID = u.ReplyToID
			b.merged.ReplyToText = u.ReplyToText
		}
	}
	b.texts = append(b.texts, u.Text)
	d.mu.Unlock()
}

// Flush emits the topic's pending batch now, if any. Commands call this so a
// message burst ahead of a slash command lands before the command runs.
func (d *debouncer) Flush(topicID int64) {
	d.mu.Lock()
	b := d.pending[topicID]
	if b == nil {
		d.mu.Unlock()
		return
	}
	delete(d.pending, topicID)
	b.timer.Stop()
	d.mu.Unlock()

	d.emit(b.merged, joinTexts(b.texts))
}

func joinTexts(texts []string) string {
	if len(texts) == 1 {
		return texts[0]
	}
	out := texts[0]
	for _, t := range texts[1:] {
		out += "\n" + t
	}
	return out
}
