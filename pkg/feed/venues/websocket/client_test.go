package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := gws.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_InitialStateDisconnected(t *testing.T) {
	client := NewClient(Config{URL: "ws://localhost:1", Logger: zerolog.Nop()})

	state, attempt := client.State()
	assert.Equal(t, StateDisconnected, state)
	assert.Equal(t, 0, attempt)
	assert.False(t, client.IsConnected())
}

func TestClient_ConnectAndEcho(t *testing.T) {
	server := echoServer(t)

	received := make(chan []byte, 1)
	client := NewClient(Config{URL: wsURL(server), Logger: zerolog.Nop()})
	client.SetHandlers(func(data []byte) { received <- data }, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, client.Start(ctx))
	defer client.Close()

	assert.True(t, client.IsConnected())

	require.NoError(t, client.Send([]byte("hello")))
	select {
	case data := <-received:
		assert.Equal(t, "hello", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("no echo within timeout")
	}
}

func TestClient_ConnectCallbackFires(t *testing.T) {
	server := echoServer(t)

	connected := make(chan struct{}, 1)
	client := NewClient(Config{URL: wsURL(server), Logger: zerolog.Nop()})
	client.SetHandlers(nil, func() { connected <- struct{}{} }, nil)

	require.NoError(t, client.Start(context.Background()))
	defer client.Close()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("connect callback not invoked")
	}
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	client := NewClient(Config{
		URL:           "ws://127.0.0.1:1",
		ReconnectWait: 10 * time.Millisecond,
		MaxRetries:    2,
		Logger:        zerolog.Nop(),
	})

	err := client.Start(context.Background())
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestClient_StartCancelledDuringBackoff(t *testing.T) {
	client := NewClient(Config{
		URL:           "ws://127.0.0.1:1",
		ReconnectWait: time.Minute,
		Logger:        zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := client.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	state, _ := client.State()
	assert.Equal(t, StateDisconnected, state)
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(Config{URL: "ws://127.0.0.1:1", Logger: zerolog.Nop()})

	assert.ErrorIs(t, client.Send([]byte("x")), ErrNotConnected)
	assert.ErrorIs(t, client.SendJSON(map[string]string{"a": "b"}), ErrNotConnected)
}

func TestClient_CloseIdempotent(t *testing.T) {
	server := echoServer(t)

	client := NewClient(Config{URL: wsURL(server), Logger: zerolog.Nop()})
	require.NoError(t, client.Start(context.Background()))

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.False(t, client.IsConnected())
}
