package backends

import (
	"context"
	"sync"

	"github.com/labelforge/labelforge/pkg/notifications"
)

// RecorderBackend keeps handled messages in memory. It stands in for the mail
// backend in development and tests.
type RecorderBackend struct {
	name string

	mu       sync.Mutex
	messages []*notifications.NotificationMessage
	err      error
}

// NewRecorderBackend creates a recorder that handles messages routed to name.
func NewRecorderBackend(name string) *RecorderBackend {
	return &RecorderBackend{name: name}
}

func (b *RecorderBackend) Name() string {
	return b.name
}

func (b *RecorderBackend) SupportsBackend(backend string) bool {
	return backend == b.name
}

// Handle records msg, or returns the error set with FailWith.
func (b *RecorderBackend) Handle(ctx context.Context, msg *notifications.NotificationMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return b.err
	}
	cp := *msg
	b.messages = append(b.messages, &cp)
	return nil
}

// FailWith makes subsequent Handle calls return err. nil restores success.
func (b *RecorderBackend) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Messages returns the recorded messages.
func (b *RecorderBackend) Messages() []*notifications.NotificationMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*notifications.NotificationMessage, len(b.messages))
	copy(out, b.messages)
	return out
}
