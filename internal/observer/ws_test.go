package observer

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registrySubscriber greets each observer the way the bus does.
type registrySubscriber struct {
	r *Registry
}

func (s registrySubscriber) Subscribe(id string) *Observer {
	o := s.r.Add(id)
	s.r.Send(o, Message{Type: TypeStats, Data: map[string]int{"observers": s.r.Count()}})
	return o
}

func (s registrySubscriber) Unsubscribe(o *Observer) { s.r.Remove(o) }

func TestHandler_DeliversInOrderAndUnsubscribesOnClose(t *testing.T) {
	t.Parallel()

	r := NewRegistry(8, nil)
	ts := httptest.NewServer(NewHandler(registrySubscriber{r}, nil))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)

	read := func() Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m Message
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	assert.Equal(t, TypeStats, read().Type)
	require.Eventually(t, func() bool { return r.Count() == 1 }, time.Second, 10*time.Millisecond)

	r.Broadcast(Message{Type: TypeCapture, Data: "first"}, Message{Type: TypeCapture, Data: "second"})
	assert.Equal(t, "first", read().Data)
	assert.Equal(t, "second", read().Data)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return r.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
