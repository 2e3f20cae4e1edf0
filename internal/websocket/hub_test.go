package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		// nobody runs the hub: the queue fills, then events are dropped
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.Publish(model.ChangeEvent{Type: model.EventMatrixChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestHubDeliversToRegisteredClients(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &Client{Hub: hub, Send: make(chan []byte, 4)}
	hub.register <- client
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(model.ChangeEvent{Type: model.EventOperationChanged, EntityID: "op-1"})

	select {
	case msg := <-client.Send:
		var got model.ChangeEvent
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, model.EventOperationChanged, got.Type)
		assert.Equal(t, "op-1", got.EntityID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubReleasesClientsAfterShutdown(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()

	select {
	case <-hub.done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	client := &Client{Hub: hub, Send: make(chan []byte, 1)}
	finished := make(chan bool)
	go func() {
		joined := hub.join(client)
		hub.leave(client)
		finished <- joined
	}()

	select {
	case joined := <-finished:
		assert.False(t, joined, "a stopped hub accepts no clients")
	case <-time.After(time.Second):
		t.Fatal("join or leave blocked after shutdown")
	}
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	auth := middleware.NewAuth("ws-secret")
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, auth, c) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("rejects missing token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("streams events", func(t *testing.T) {
		token, err := auth.SignToken(middleware.Claims{Username: "dana", Role: model.RoleOps})
		require.NoError(t, err)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
		hub.Publish(model.ChangeEvent{Type: model.EventMatrixChanged, RoleID: "r-1"})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"matrix.changed","role_id":"r-1"}`, string(msg))
	})
}
