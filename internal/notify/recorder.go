package notify

import (
	"context"
	"sync"
)

// Recorder is an in-memory Dispatcher for tests. Setting Err makes every
// Send fail after recording the message.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.Err
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// ByTemplate returns the recorded messages for one template key.
func (r *Recorder) ByTemplate(key string) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.TemplateKey == key {
			out = append(out, m)
		}
	}
	return out
}
