package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/session"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSet_ListingWhileClientsChange(t *testing.T) {
	auth := NewAuthHandler("s3cret")
	clients := newClientSet()
	client := &Client{ID: "a", ConnectedAt: time.Now(), LastActivity: time.Now()}
	clients.put(client)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			clients.touch("a", time.Now())
			client.challenge("abc")
			auth.HandleAuthResponse(client, auth.Sign("a", "abc"))
			client.setState(StateDisconnected)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = clients.describe(time.Now(), nil)
			_ = clients.filter(authenticated)
		}
	}()
	wg.Wait()

	infos := clients.describe(time.Now(), nil)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Authenticated)
	assert.Equal(t, "disconnected", infos[0].State)
}

func TestEventBroadcaster_PublishSkipsOriginSession(t *testing.T) {
	originConn, originPeer, cleanupOrigin := websocketConnPair(t)
	defer cleanupOrigin()
	otherConn, otherPeer, cleanupOther := websocketConnPair(t)
	defer cleanupOther()

	clients := newClientSet()
	clients.put(&Client{ID: "editor", Conn: originConn, Authenticated: true})
	clients.put(&Client{ID: "viewer", Conn: otherConn, Authenticated: true})

	b := newEventBroadcaster(clients, zerolog.Nop())
	delivered := b.Publish(EventMessage{
		Event:   "document.saved",
		Data:    map[string]interface{}{"path": "/docs/a.docx"},
		TraceID: "trace-1",
		Session: "editor",
	})
	assert.Equal(t, 1, delivered)

	var event EventMessage
	require.NoError(t, otherPeer.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, otherPeer.ReadJSON(&event))
	assert.Equal(t, "event", event.Type)
	assert.Equal(t, "document.saved", event.Event)
	assert.Equal(t, "editor", event.Session)
	assert.Equal(t, "trace-1", event.TraceID)
	assert.NotZero(t, event.Timestamp)

	require.NoError(t, originPeer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	assert.Error(t, originPeer.ReadJSON(&event), "the saving session is not told about its own save")
}

func TestEventBroadcaster_SequenceIncreases(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	clients := newClientSet()
	clients.put(&Client{ID: "viewer", Conn: serverConn, Authenticated: true})

	b := newEventBroadcaster(clients, zerolog.Nop())
	b.Broadcast("tick", map[string]interface{}{"clients": 1})
	b.Broadcast("server.shutdown", nil)

	var first, second EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&first))
	require.NoError(t, clientConn.ReadJSON(&second))

	assert.Equal(t, "tick", first.Event)
	assert.Equal(t, "server.shutdown", second.Event)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestEventBroadcaster_SkipsUnauthenticatedClients(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	clients := newClientSet()
	clients.put(&Client{ID: "pending", Conn: serverConn})

	b := newEventBroadcaster(clients, zerolog.Nop())
	assert.Equal(t, 0, b.Broadcast("tick", nil))

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var event EventMessage
	assert.Error(t, clientConn.ReadJSON(&event))
}

func TestClientSet_FilterOrdersByConnection(t *testing.T) {
	base := time.Now()
	clients := newClientSet()
	clients.put(&Client{ID: "late", ConnectedAt: base.Add(time.Second), Authenticated: true})
	clients.put(&Client{ID: "early", ConnectedAt: base})
	clients.put(&Client{ID: "middle", ConnectedAt: base.Add(500 * time.Millisecond), Authenticated: true})

	var ids []string
	for _, c := range clients.filter(nil) {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"early", "middle", "late"}, ids)
	assert.Len(t, clients.filter(authenticated), 2)

	_, ok := clients.drop("middle")
	assert.True(t, ok)
	_, ok = clients.drop("middle")
	assert.False(t, ok)
	assert.Equal(t, 2, clients.len())
}

func TestClientSet_DescribeReportsSessionDocuments(t *testing.T) {
	store := document.NewStorage(afero.NewMemMapFs(), "/docs")
	require.NoError(t, store.Save(document.New("one"), "a.docx"))
	require.NoError(t, store.Save(document.New("two"), "b.docx"))
	mgr := session.NewManager(store, session.Options{})
	defer mgr.Close(context.Background())

	ctx := context.Background()
	_, err := mgr.GetOrOpen(ctx, "editor", "a.docx")
	require.NoError(t, err)
	lease, err := mgr.Acquire(ctx, "editor", "b.docx", session.ModeWrite)
	require.NoError(t, err)
	lease.Document().AppendParagraph(document.Paragraph{Text: "more"})
	require.NoError(t, lease.MarkDirty())
	lease.Release()

	now := time.Now()
	clients := newClientSet()
	clients.put(&Client{ID: "editor", ConnectedAt: now, LastActivity: now, Authenticated: true})
	clients.put(&Client{ID: "idle", ConnectedAt: now.Add(time.Millisecond), LastActivity: now.Add(-time.Hour)})

	infos := clients.describe(now, mgr)
	require.Len(t, infos, 2)

	assert.Equal(t, "editor", infos[0].ID)
	assert.ElementsMatch(t, []string{"/docs/a.docx", "/docs/b.docx"}, infos[0].Documents)
	assert.Equal(t, 1, infos[0].Unsaved)
	assert.False(t, infos[0].Idle)

	assert.Equal(t, "idle", infos[1].ID)
	assert.Empty(t, infos[1].Documents)
	assert.True(t, infos[1].Idle)

	stateless := clients.describe(now, nil)
	assert.Empty(t, stateless[0].Documents)
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	return serverConn, clientConn, func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}
}
