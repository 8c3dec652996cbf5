package handler_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyquest-api/internal/dto"
)

type wsEvent struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

func startChatServer(t *testing.T, stack *chatStack) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = stack.app.Listener(ln) }()
	t.Cleanup(func() { _ = stack.app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/api/v2/chat/ws"
}

func dialChat(t *testing.T, url, user string) *gorillaws.Conn {
	t.Helper()
	header := http.Header{}
	if user != "" {
		header.Set("X-Test-User", user)
		header.Set("X-Test-Name", user)
	}

	var conn *gorillaws.Conn
	require.Eventually(t, func() bool {
		c, _, err := gorillaws.DefaultDialer.Dial(url, header)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 3*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// nextEvent reads frames until one of the wanted type arrives.
func nextEvent(t *testing.T, conn *gorillaws.Conn, eventType string) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var event wsEvent
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type == eventType {
			return event
		}
	}
}

func TestChatWebsocketSessionFlow(t *testing.T) {
	stack := newChatStack(t)
	group, err := stack.groups.Create(context.Background(), "ada", dto.GroupCreateRequest{Name: "Algebra"})
	require.NoError(t, err)
	_, err = stack.groups.Join(context.Background(), group.ID, "ben")
	require.NoError(t, err)

	url := startChatServer(t, stack)
	ada := dialChat(t, url, "ada")
	ben := dialChat(t, url, "ben")

	groups := nextEvent(t, ada, dto.SessionEventGroups)
	var directory dto.GroupDirectoryResponse
	require.NoError(t, json.Unmarshal(groups.Payload, &directory))
	require.Len(t, directory.Groups, 1)
	nextEvent(t, ben, dto.SessionEventGroups)

	for _, conn := range []*gorillaws.Conn{ada, ben} {
		require.NoError(t, conn.WriteJSON(dto.ChatClientFrame{Type: dto.ClientFrameJoin, RoomID: group.ID}))
		history := nextEvent(t, conn, dto.SessionEventHistory)
		require.Equal(t, group.ID, history.RoomID)
	}

	require.NoError(t, ada.WriteJSON(dto.ChatClientFrame{Type: dto.ClientFrameSend, Content: "first"}))
	require.NoError(t, ada.WriteJSON(dto.ChatClientFrame{Type: dto.ClientFrameSend, Content: "second"}))

	// the sender sees each message once even though the push echoes it back
	for _, want := range []string{"first", "second"} {
		var message dto.ChatMessageResponse
		require.NoError(t, json.Unmarshal(nextEvent(t, ada, dto.SessionEventMessage).Payload, &message))
		require.Equal(t, want, message.Content)
	}
	for _, want := range []string{"first", "second"} {
		var message dto.ChatMessageResponse
		require.NoError(t, json.Unmarshal(nextEvent(t, ben, dto.SessionEventMessage).Payload, &message))
		require.Equal(t, want, message.Content)
	}

	require.NoError(t, ada.WriteJSON(dto.ChatClientFrame{Type: dto.ClientFrameTyping}))
	var typing dto.TypingPayload
	require.NoError(t, json.Unmarshal(nextEvent(t, ben, dto.SessionEventTyping).Payload, &typing))
	require.Len(t, typing.Users, 1)
	require.Equal(t, "ada", typing.Users[0].UserID)
}

func TestChatWebsocketAnonymousSendIsRejected(t *testing.T) {
	stack := newChatStack(t)
	group, err := stack.groups.Create(context.Background(), "ada", dto.GroupCreateRequest{Name: "Open room"})
	require.NoError(t, err)

	url := startChatServer(t, stack)
	guest := dialChat(t, url+"?room_id="+group.ID, "")

	nextEvent(t, guest, dto.SessionEventHistory)
	require.NoError(t, guest.WriteJSON(dto.ChatClientFrame{Type: dto.ClientFrameSend, Content: "hello"}))

	var notice dto.NoticePayload
	require.NoError(t, json.Unmarshal(nextEvent(t, guest, dto.SessionEventNotice).Payload, &notice))
	require.Equal(t, "you must be logged in to send messages", notice.Message)
}
