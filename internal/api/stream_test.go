package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminal-bench/comptroller/internal/auth"
	"github.com/terminal-bench/comptroller/internal/comptroller"
	"github.com/terminal-bench/comptroller/internal/token"
	"github.com/terminal-bench/comptroller/pkg/decimal"
	"github.com/terminal-bench/comptroller/pkg/messaging"
)

func TestEventStream(t *testing.T) {
	t.Run("should stream committed operations", func(t *testing.T) {
		hub := NewHub(nil)
		ledger := token.NewLedger()
		ctrl := comptroller.New(comptroller.Config{}, ledger, comptroller.WithPublisher(hub))
		server := NewServer(Config{}, ctrl, ledger, auth.NewService("test-secret", "comptroller"), WithHub(hub))

		srv := httptest.NewServer(server.Handler())
		defer srv.Close()
		defer hub.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, ctrl.MintTo(context.Background(), "alice", decimal.NewAmountFromUint64(12)))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var event messaging.Event
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, messaging.EventTypeMinted, event.Type)

		payload, err := messaging.ParseEventData[messaging.PolicyEvent](&event)
		require.NoError(t, err)
		assert.Equal(t, "alice", payload.Account)
		assert.Equal(t, "12", payload.TotalSupply)
	})

	t.Run("should forget disconnected clients", func(t *testing.T) {
		hub := NewHub(nil)
		ledger := token.NewLedger()
		ctrl := comptroller.New(comptroller.Config{}, ledger)
		server := NewServer(Config{}, ctrl, ledger, auth.NewService("test-secret", "comptroller"), WithHub(hub))

		srv := httptest.NewServer(server.Handler())
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

		conn.Close()
		assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("should publish without clients", func(t *testing.T) {
		hub := NewHub(nil)
		assert.NoError(t, hub.Publish(context.Background(), messaging.EventTypeMinted, gin.H{"ok": true}))
	})
}
