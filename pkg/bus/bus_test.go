package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition never became true")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var got atomic.Value
	_, err := b.Subscribe(context.Background(), "stratagem.run.conv-1", func(msg *Message) {
		got.Store(string(msg.Data))
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "stratagem.run.conv-1", []byte("hello")))
	waitFor(t, func() bool { return got.Load() != nil })
	assert.Equal(t, "hello", got.Load())
}

func TestMemoryBusWildcards(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var count atomic.Int64
	_, err := b.Subscribe(context.Background(), "stratagem.run.>", func(msg *Message) {
		count.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), RunSubject("conv-1"), []byte("a")))
	require.NoError(t, b.Publish(context.Background(), RunSubject("conv-2"), []byte("b")))
	require.NoError(t, b.Publish(context.Background(), SubjectApprovalPending, []byte("c")))

	waitFor(t, func() bool { return count.Load() == 2 })
	assert.Equal(t, int64(2), count.Load())
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var count atomic.Int64
	sub, err := b.Subscribe(context.Background(), "x", func(msg *Message) { count.Add(1) })
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "x", []byte("1")))
	waitFor(t, func() bool { return count.Load() == 1 })

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, b.Publish(context.Background(), "x", []byte("2")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load())
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "x", nil), ErrClosed)
	_, err := b.Subscribe(context.Background(), "x", func(*Message) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Close(), ErrClosed)
}

func TestMatchSubject(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"a.b.c", "a.b.c", true},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.d", false},
		{"a.>", "a.b.c.d", true},
		{"a.>", "a", false},
		{"a.b", "a.b.c", false},
		{"*", "a", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchSubject(tc.pattern, tc.subject), "%s vs %s", tc.pattern, tc.subject)
	}
}

func TestNewSelectsMemoryBusWithoutURL(t *testing.T) {
	b, err := New(Config{})
	require.NoError(t, err)
	defer b.Close()
	_, ok := b.(*MemoryBus)
	assert.True(t, ok)
}

func TestRunSubject(t *testing.T) {
	assert.Equal(t, "stratagem.run.conv-9", RunSubject("conv-9"))
}
