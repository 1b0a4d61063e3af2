package tap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsURL(server *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(server.URL, "http://")
}

func TestWebsocket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	require := require.New(t)

	handle := "user3.test"
	events := []Event{
		{ID: 1, Type: eventTypeRecord, record: &RecordEvent{DID: "did:plc:1", Collection: "app.bsky.feed.post"}},
		{ID: 2, Type: eventTypeRecord, record: &RecordEvent{DID: "did:plc:2", Collection: "app.bsky.feed.like"}},
		{ID: 3, Type: eventTypeIdentity, identity: &IdentityEvent{DID: "did:plc:3", Handle: &handle}},
	}

	var received []*Event
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(events))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, ev := range events {
			buf, _ := json.Marshal(ev)
			conn.WriteMessage(websocket.TextMessage, buf)
			time.Sleep(10 * time.Millisecond)
		}

		time.Sleep(50 * time.Millisecond)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	ws, err := NewWebsocket(wsURL(server), func(ctx context.Context, ev *Event) error {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		wg.Done()
		return nil
	}, WithLogger(nil))
	require.NoError(err)

	go ws.Run(ctx)
	wg.Wait()

	require.Len(received, 3)
	for i, ev := range received {
		require.Equal(uint64(i+1), ev.ID)

		switch i {
		case 0, 1:
			switch pl := ev.Payload().(type) {
			case *RecordEvent:
				require.NotNil(events[i].record)
				require.Equal(events[i].record.Collection, pl.Collection)
				require.Equal(events[i].Type, eventTypeRecord)
			default:
				require.FailNow("incorrect payload type, want %T got %T", &RecordEvent{}, ev.Payload())
			}

		case 2:
			switch pl := ev.Payload().(type) {
			case *IdentityEvent:
				require.NotNil(events[i].identity)
				require.Equal(events[i].identity.Handle, pl.Handle)
				require.Equal(events[i].Type, eventTypeIdentity)
			default:
				require.FailNow("incorrect payload type, want %T got %T", &IdentityEvent{}, ev.Payload())
			}
		}
	}
}

func TestWebsocketAcksSentByDefault(t *testing.T) {
	t.Parallel()

	t.Run("ack sent on success", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		require := require.New(t)

		recordEvent := Event{
			ID:   42,
			Type: eventTypeRecord,
			record: &RecordEvent{
				DID:        "did:plc:ack",
				Collection: "app.bsky.feed.like",
				Rkey:       "ack",
				Action:     "create",
			},
		}

		var receivedAck *Event
		var wg sync.WaitGroup
		wg.Add(1)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()

			buf, _ := json.Marshal(recordEvent)
			conn.WriteMessage(websocket.TextMessage, buf)

			_, ackBuf, err := conn.ReadMessage()
			if err == nil {
				receivedAck = &Event{}
				json.Unmarshal(ackBuf, receivedAck)
			}
			wg.Done()

			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}))
		defer server.Close()

		ws, err := NewWebsocket(wsURL(server), func(ctx context.Context, ev *Event) error {
			return nil
		}, WithLogger(nil))
		require.NoError(err)

		go ws.Run(ctx)
		wg.Wait()

		require.NotNil(receivedAck)
		require.Equal(eventTypeACK, receivedAck.Type)
		require.Equal(recordEvent.ID, receivedAck.ID)
	})

	t.Run("ack not sent on error", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		require := require.New(t)

		recordEvent := Event{
			ID:   99,
			Type: eventTypeRecord,
			record: &RecordEvent{
				DID:        "did:plc:noack",
				Collection: "app.bsky.feed.post",
				Rkey:       "noack",
				Action:     "create",
			},
		}

		var receivedAck bool
		var wg sync.WaitGroup
		wg.Add(1)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()

			buf, _ := json.Marshal(recordEvent)
			conn.WriteMessage(websocket.TextMessage, buf)

			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			_, _, err = conn.ReadMessage()
			receivedAck = err == nil
			wg.Done()

			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}))
		defer server.Close()

		ws, err := NewWebsocket(wsURL(server), func(ctx context.Context, ev *Event) error {
			return errors.New("processing failed")
		}, WithLogger(nil))
		require.NoError(err)

		go ws.Run(ctx)
		wg.Wait()

		require.False(receivedAck, "expected no ACK when handler returns error")
	})
}

func TestWebsocketDisableAcks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	require := require.New(t)

	recordEvent := Event{
		ID:   7,
		Type: eventTypeRecord,
		record: &RecordEvent{
			DID:        "did:plc:disabled",
			Collection: "app.bsky.feed.post",
			Rkey:       "x",
			Action:     "create",
		},
	}

	var receivedAck bool
	var wg sync.WaitGroup
	wg.Add(1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		buf, _ := json.Marshal(recordEvent)
		conn.WriteMessage(websocket.TextMessage, buf)

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, _, err = conn.ReadMessage()
		receivedAck = err == nil
		wg.Done()

		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	ws, err := NewWebsocket(wsURL(server), func(ctx context.Context, ev *Event) error {
		return nil
	}, WithLogger(nil), WithDisableAcks())
	require.NoError(err)

	go ws.Run(ctx)
	wg.Wait()

	require.False(receivedAck, "expected no ACK when acks are disabled")
}
