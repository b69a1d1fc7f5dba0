package lasterror

import (
	"context"
	"sync"
)

// Channel holds the last error recorded by one calling context. A later
// success does not clear it; callers only consult it after a failure signal.
type Channel struct {
	err error
	msg string
	set bool
	mu  sync.Mutex
}

// New returns an empty channel.
func New() *Channel {
	return &Channel{}
}

// Record stores err as the current error, replacing the previous one. A nil
// err is ignored.
func (c *Channel) Record(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.err = err
	c.msg = err.Error()
	c.set = true
	c.mu.Unlock()
}

// RecordMessage stores a bare message as the current error.
func (c *Channel) RecordMessage(msg string) {
	c.mu.Lock()
	c.err = nil
	c.msg = msg
	c.set = true
	c.mu.Unlock()
}

// Length returns the byte length of the current message, or 0 when nothing
// has been recorded.
func (c *Channel) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msg)
}

// CopyInto writes the current message into buf and returns the number of
// bytes written. It returns -1, leaving buf untouched, when no message is
// recorded or len(buf) is smaller than Length.
func (c *Channel) CopyInto(buf []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set || len(buf) < len(c.msg) {
		return -1
	}
	return copy(buf, c.msg)
}

// Message returns the current message and whether one is recorded.
func (c *Channel) Message() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msg, c.set
}

// Err returns the error passed to the last Record, nil after RecordMessage
// or when nothing is recorded.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Clear drops the current message.
func (c *Channel) Clear() {
	c.mu.Lock()
	c.err = nil
	c.msg = ""
	c.set = false
	c.mu.Unlock()
}

type channelKey struct{}

// WithChannel returns a child context carrying a fresh channel.
func WithChannel(ctx context.Context) (context.Context, *Channel) {
	c := New()
	return context.WithValue(ctx, channelKey{}, c), c
}

// NewContext returns a child context carrying c.
func NewContext(ctx context.Context, c *Channel) context.Context {
	return context.WithValue(ctx, channelKey{}, c)
}

// FromContext returns the channel carried by ctx, or nil.
func FromContext(ctx context.Context) *Channel {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(channelKey{}).(*Channel)
	return c
}

// Record stores err in the channel carried by ctx, if any, and returns err
// so call sites can record and return in one statement.
func Record(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if c := FromContext(ctx); c != nil {
		c.Record(err)
	}
	return err
}
