package lasterror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestChannelEmpty(t *testing.T) {
	c := New()

	if got := c.Length(); got != 0 {
		t.Errorf("Length() on empty channel = %d, want 0", got)
	}
	if got := c.CopyInto(make([]byte, 64)); got != -1 {
		t.Errorf("CopyInto() on empty channel = %d, want -1", got)
	}
	if _, ok := c.Message(); ok {
		t.Error("Message() reported a message on empty channel")
	}
}

func TestChannelCopyInto(t *testing.T) {
	c := New()
	c.Record(errors.New("memory grow failed"))
	msg := "memory grow failed"

	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"exact", len(msg), len(msg)},
		{"larger", len(msg) + 10, len(msg)},
		{"one short", len(msg) - 1, -1},
		{"zero", 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.capacity)
			for i := range buf {
				buf[i] = 0xAA
			}
			got := c.CopyInto(buf)
			if got != tt.want {
				t.Fatalf("CopyInto(cap %d) = %d, want %d", tt.capacity, got, tt.want)
			}
			if got < 0 {
				for i, b := range buf {
					if b != 0xAA {
						t.Fatalf("failed CopyInto wrote byte %d", i)
					}
				}
				return
			}
			if string(buf[:got]) != msg {
				t.Errorf("CopyInto wrote %q, want %q", buf[:got], msg)
			}
		})
	}
}

func TestChannelRecordReplaces(t *testing.T) {
	c := New()
	first := errors.New("first failure with a long message")
	c.Record(first)
	c.Record(errors.New("second"))

	if got := c.Length(); got != len("second") {
		t.Errorf("Length() = %d, want %d", got, len("second"))
	}
	if msg, _ := c.Message(); msg != "second" {
		t.Errorf("Message() = %q, want second", msg)
	}
	if errors.Is(c.Err(), first) {
		t.Error("Err() still returns the replaced error")
	}
}

func TestChannelStaleAfterSuccess(t *testing.T) {
	c := New()
	c.Record(errors.New("boom"))
	c.Record(nil)

	if msg, ok := c.Message(); !ok || msg != "boom" {
		t.Errorf("Message() = %q, %v; a nil record must not clear the channel", msg, ok)
	}

	c.Clear()
	if got := c.Length(); got != 0 {
		t.Errorf("Length() after Clear = %d, want 0", got)
	}
}

func TestRecordMessage(t *testing.T) {
	c := New()
	c.RecordMessage("bad handle")
	if c.Err() != nil {
		t.Error("Err() should be nil after RecordMessage")
	}
	buf := make([]byte, c.Length())
	if n := c.CopyInto(buf); n != len("bad handle") || string(buf) != "bad handle" {
		t.Errorf("CopyInto = %d %q", n, buf)
	}
}

func TestContextScoping(t *testing.T) {
	base := context.Background()
	if FromContext(base) != nil {
		t.Fatal("background context should carry no channel")
	}
	if err := Record(base, errors.New("ignored")); err == nil {
		t.Error("Record should return its argument")
	}

	ctx, c := WithChannel(base)
	if FromContext(ctx) != c {
		t.Fatal("FromContext did not return the attached channel")
	}
	_ = Record(ctx, errors.New("recorded"))
	if msg, _ := c.Message(); msg != "recorded" {
		t.Errorf("Message() = %q, want recorded", msg)
	}

	shared := New()
	if FromContext(NewContext(base, shared)) != shared {
		t.Error("NewContext did not attach the given channel")
	}
}

func TestConcurrentContextsAreIsolated(t *testing.T) {
	const workers = 16
	g, ctx := errgroup.WithContext(context.Background())

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			wctx, c := WithChannel(ctx)
			for j := 0; j < 200; j++ {
				want := fmt.Sprintf("worker %d failure %d", i, j)
				_ = Record(wctx, errors.New(want))
				buf := make([]byte, c.Length())
				if n := c.CopyInto(buf); n != len(want) || string(buf) != want {
					return fmt.Errorf("worker %d saw %q, want %q", i, buf, want)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
