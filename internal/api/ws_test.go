package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festival-orders/internal/domain"
)

func TestEventStream(t *testing.T) {
	srv := newTestServer(t, nil)
	tn := createTenant(t, srv)
	it := addMenuItem(t, srv, tn.ID, 10)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tenants/" + tn.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() domain.Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev domain.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	snap := readEvent()
	require.Equal(t, domain.EventSnapshot, snap.Type)
	require.NotNil(t, snap.Snapshot)
	require.Len(t, snap.Snapshot.Menu, 1)
	assert.Equal(t, it.ID, snap.Snapshot.Menu[0].ID)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/tenants/"+tn.ID+"/orders", domain.PlaceOrderRequest{
		Customer: domain.Customer{Name: "Sato"},
		Items:    []domain.PlaceOrderItem{{MenuItemID: it.ID, Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	stock := readEvent()
	require.Equal(t, domain.EventStockChanged, stock.Type)
	require.NotNil(t, stock.Item)
	assert.Equal(t, 9, stock.Item.Stock)

	placed := readEvent()
	require.Equal(t, domain.EventOrderPlaced, placed.Type)
	require.NotNil(t, placed.Order)
	assert.Equal(t, domain.StatusPending, placed.Order.Status)
	assert.Greater(t, placed.Seq, stock.Seq, "diffs arrive in commit order")
}
