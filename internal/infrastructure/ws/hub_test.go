package ws

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayBuffer_KeepsNewest(t *testing.T) {
	buf := &replayBuffer{size: 3}
	for i := uint64(1); i <= 5; i++ {
		buf.add(Message{Topic: "t", Seq: i, Data: []byte(`{}`)})
	}
	got := buf.since(0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(5), got[2].Seq)

	got = buf.since(4)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(5), got[0].Seq)
}

func TestHub_ReplayIsPerTopic(t *testing.T) {
	h := NewHub(10, nil)
	defer h.Shutdown()

	h.Broadcast("noc:a", []byte(`{"n":1}`))
	h.Broadcast("noc:b", []byte(`{"n":2}`))
	seq := h.Broadcast("noc:a", []byte(`{"n":3}`))

	assert.Len(t, h.Replay("noc:a", 0), 2)
	assert.Len(t, h.Replay("noc:b", 0), 1)
	assert.Empty(t, h.Replay("noc:a", seq))
	assert.Nil(t, h.Replay("noc:c", 0))
}

func newTestServer(t *testing.T, h *Hub, topic string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
		_ = h.ServeWS(w, r, "test-client", topic, since)
	}))
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_LiveAndReplayDelivery(t *testing.T) {
	h := NewHub(10, nil)
	defer h.Shutdown()
	srv := newTestServer(t, h, "noc:tenant")
	defer srv.Close()

	first := h.Broadcast("noc:tenant", []byte(`{"title":"old"}`))
	h.Broadcast("noc:tenant", []byte(`{"title":"missed"}`))

	conn := dial(t, srv, "?since="+strconv.FormatUint(first, 10))
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ClientCount("noc:tenant") == 1 }, time.Second, 10*time.Millisecond)
	h.Broadcast("noc:tenant", []byte(`{"title":"live"}`))
	h.Broadcast("noc:other", []byte(`{"title":"elsewhere"}`))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var replayed, live Message
	require.NoError(t, conn.ReadJSON(&replayed))
	require.NoError(t, conn.ReadJSON(&live))
	assert.JSONEq(t, `{"title":"missed"}`, string(replayed.Data))
	assert.JSONEq(t, `{"title":"live"}`, string(live.Data))
	assert.Greater(t, live.Seq, replayed.Seq)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	h := NewHub(10, nil)
	defer h.Shutdown()
	srv := newTestServer(t, h, "noc:x")
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return h.ClientCount("noc:x") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.ClientCount("noc:x") == 0 }, 2*time.Second, 10*time.Millisecond)
}
