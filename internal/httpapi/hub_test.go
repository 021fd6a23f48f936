package httpapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/engine"
	"github.com/rbruinekool/singularity/internal/model"
)

func dialFeed(t *testing.T, f *apiFixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readFeed(t *testing.T, conn *websocket.Conn) FeedMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg FeedMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_StreamsEngineEvents(t *testing.T) {
	f := newAPIFixture(t)
	id := f.addItem(t, nil)
	f.engine.Drain(context.Background())

	conn := dialFeed(t, f)

	require.NoError(t, f.store.MergeCells(context.Background(), model.Rundown, id,
		model.Cells{model.ColumnStatus: "In"}))
	f.engine.Drain(context.Background())

	transition := readFeed(t, conn)
	require.Equal(t, KindEvent, transition.Kind)
	require.NotNil(t, transition.Event)
	assert.Equal(t, engine.EventStateTransitioned, transition.Event.Type)
	assert.Equal(t, id, transition.Event.RowID)
	assert.Equal(t, "Out1", transition.Event.Old)
	assert.Equal(t, "In", transition.Event.New)

	cells := readFeed(t, conn)
	require.NotNil(t, cells.Event)
	assert.Equal(t, engine.EventCellsChanged, cells.Event.Type)
	assert.Equal(t, []string{model.ColumnStatus}, cells.Event.Columns)
}

func TestHub_StreamsDispatchNotices(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialFeed(t, f)

	f.hub.NotifyDispatch(dispatch.Notice{
		DispatchID: "d-1",
		RowID:      4,
		State:      model.StateIn,
		Outcome:    dispatch.OutcomeOK,
	})

	msg := readFeed(t, conn)
	assert.Equal(t, KindDispatch, msg.Kind)
	require.NotNil(t, msg.Dispatch)
	assert.Equal(t, "d-1", msg.Dispatch.DispatchID)
	assert.Equal(t, dispatch.OutcomeOK, msg.Dispatch.Outcome)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialFeed(t, f)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return f.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialFeed(t, f)

	f.hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, f.hub.Len())
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := NewHub(nil)
	assert.NoError(t, h.Broadcast(FeedMessage{Kind: KindEvent}))
	assert.Equal(t, 0, h.Len())
}
