package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeConn feeds reads from in and records writes.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
	types  []int
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}

func (f *fakeConn) SetReadDeadline(time.Time) error {
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error {
	return nil
}

func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errors.New("closed")
	}
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, mt)
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for i, w := range f.writes {
		if f.types[i] == websocket.TextMessage {
			out = append(out, string(w))
		}
	}
	return out
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	return h, cancel
}

func connect(t *testing.T, h *Hub, topic string) (*Client, *fakeConn, <-chan struct{}) {
	t.Helper()
	conn := newFakeConn()
	c := NewClient(h, conn, topic)
	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()
	require.Eventually(t, func() bool { return h.Subscribers(topic) > 0 }, time.Second, time.Millisecond)
	return c, conn, done
}

func TestPublishReachesOnlyTopic(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)
	_, connA, doneA := connect(t, h, "session-a")
	_, connB, doneB := connect(t, h, "session-b")
	assert.Equal(t, 2, h.ClientCount())

	require.NoError(t, h.PublishJSON("session-a", map[string]string{"type": "result"}))

	require.Eventually(t, func() bool { return len(connA.texts()) == 1 }, time.Second, time.Millisecond)
	assert.JSONEq(t, `{"type":"result"}`, connA.texts()[0])
	assert.Empty(t, connB.texts())

	cancel()
	<-doneA
	<-doneB
}

func TestClientDisconnectUnsubscribes(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)
	defer cancel()

	_, conn, done := connect(t, h, "s")
	conn.Close()
	<-done

	require.Eventually(t, func() bool { return h.Subscribers("s") == 0 }, time.Second, time.Millisecond)
	h.Publish("s", NewJSONMessage([]byte(`{}`)))

	cancel()
	<-h.Done()
}

func TestOnMessageAndSendTo(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)

	conn := newFakeConn()
	c := NewClient(h, conn, "s")
	c.OnMessage = func(c *Client, data []byte) {
		c.Send(NewJSONMessage(append([]byte("echo:"), data...)))
	}
	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()
	_, other, otherDone := connect(t, h, "s")

	conn.in <- []byte("ping")
	require.Eventually(t, func() bool { return len(conn.texts()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "echo:ping", conn.texts()[0])
	assert.Empty(t, other.texts(), "replies go to the sender only")

	cancel()
	<-done
	<-otherDone
}

func TestOnRegisterQueuesAheadOfPublishes(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)

	conn := newFakeConn()
	c := NewClient(h, conn, "s")
	registered := make(chan struct{})
	c.OnRegister = func(c *Client) {
		c.Send(NewJSONMessage([]byte(`{"type":"state"}`)))
		close(registered)
	}
	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()

	<-registered
	h.Publish("s", NewJSONMessage([]byte(`{"type":"result"}`)))

	require.Eventually(t, func() bool { return len(conn.texts()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{`{"type":"state"}`, `{"type":"result"}`}, conn.texts())
	assert.Equal(t, 1, h.Subscribers("s"))

	cancel()
	<-done
}

func TestShutdownClosesClients(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)
	_, conn, done := connect(t, h, "s")

	cancel()
	<-done
	<-h.Done()

	select {
	case <-conn.closed:
	default:
		t.Error("connection should be closed after shutdown")
	}
	assert.Equal(t, 0, h.ClientCount())

	// publishing after shutdown must not block
	h.Publish("s", NewJSONMessage([]byte(`{}`)))

	// late clients are refused
	late := newFakeConn()
	NewClient(h, late, "s").Run()
	select {
	case <-late.closed:
	default:
		t.Error("late client should be closed")
	}
}
