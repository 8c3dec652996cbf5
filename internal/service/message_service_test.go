package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/realtime"
)

func TestMessageServiceLoadIsIdempotent(t *testing.T) {
	fixture := newChatFixture(t)
	ctx := context.Background()
	fixture.addProfile(t, "user-1", "Ada")
	group := fixture.createGroup(t, "Physics", "user-1")

	for _, content := range []string{"first", "second", "third"} {
		_, err := fixture.messages.Send(ctx, dto.ChatSendRequest{GroupID: group.ID, SenderID: "user-1", Content: content})
		require.NoError(t, err)
	}

	first, err := fixture.messages.Load(ctx, group.ID)
	require.NoError(t, err)
	second, err := fixture.messages.Load(ctx, group.ID)
	require.NoError(t, err)

	require.Len(t, first, 3)
	require.Equal(t, first, second)
	require.Equal(t, "first", first[0].Content)
	require.Equal(t, "Ada", first[0].Sender.Name)
}

func TestMessageServiceSendPublishesExactlyOneInsert(t *testing.T) {
	fixture := newChatFixture(t)
	ctx := context.Background()
	group := fixture.createGroup(t, "Chemistry", "user-1")

	var (
		mu     sync.Mutex
		events []realtime.Event
	)
	sub, err := fixture.bus.Subscribe(ctx, realtime.MessagesTopic(group.ID), func(event realtime.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	sent, err := fixture.messages.Send(ctx, dto.ChatSendRequest{GroupID: group.ID, SenderID: "user-1", Content: "<b>hello</b><script>x</script>"})
	require.NoError(t, err)
	require.NotEmpty(t, sent.ID)
	require.Equal(t, "<b>hello</b>", sent.Content)
	require.False(t, sent.CreatedAt.IsZero())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	require.Equal(t, realtime.EventInsert, events[0].Type)
}

func TestMessageServiceSubscribeHydratesSender(t *testing.T) {
	fixture := newChatFixture(t)
	ctx := context.Background()
	fixture.addProfile(t, "user-2", "Grace")
	group := fixture.createGroup(t, "Biology", "user-1", "user-2")

	received := make(chan dto.ChatMessageResponse, 4)
	sub, err := fixture.messages.Subscribe(ctx, group.ID, func(message dto.ChatMessageResponse) {
		received <- message
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = fixture.messages.Send(ctx, dto.ChatSendRequest{GroupID: group.ID, SenderID: "user-2", Content: "hi"})
	require.NoError(t, err)

	select {
	case message := <-received:
		require.Equal(t, "hi", message.Content)
		require.Equal(t, "Grace", message.Sender.Name)
	case <-time.After(time.Second):
		t.Fatal("expected insert to be delivered")
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
}

func TestMessageServiceSendRejectsEmptyMessage(t *testing.T) {
	fixture := newChatFixture(t)

	_, err := fixture.messages.Send(context.Background(), dto.ChatSendRequest{GroupID: "g1", SenderID: "user-1", Content: "<script></script>"})
	require.ErrorIs(t, err, ErrMessageEmpty)

	_, err = fixture.messages.Send(context.Background(), dto.ChatSendRequest{GroupID: "g1", SenderID: "user-1"})
	require.Error(t, err)
}

func TestMessageServiceSendAcceptsAttachmentOnly(t *testing.T) {
	fixture := newChatFixture(t)
	group := fixture.createGroup(t, "Maths", "user-1")

	sent, err := fixture.messages.Send(context.Background(), dto.ChatSendRequest{
		GroupID:  group.ID,
		SenderID: "user-1",
		Attachments: []dto.AttachmentPayload{{
			URL:      "https://cdn.example.com/notes.pdf",
			Name:     "notes.pdf",
			MimeType: "application/pdf",
		}},
	})
	require.NoError(t, err)
	require.Len(t, sent.Attachments, 1)

	loaded, err := fixture.messages.Load(context.Background(), group.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "notes.pdf", loaded[0].Attachments[0].Name)
	require.Equal(t, "Unknown user", loaded[0].Sender.Name)
}

func TestMessageServiceReactToggles(t *testing.T) {
	fixture := newChatFixture(t)
	ctx := context.Background()
	group := fixture.createGroup(t, "Art", "user-1")

	sent, err := fixture.messages.Send(ctx, dto.ChatSendRequest{GroupID: group.ID, SenderID: "user-1", Content: "look"})
	require.NoError(t, err)

	reacted, err := fixture.messages.React(ctx, sent.ID, "user-2", "🔥")
	require.NoError(t, err)
	require.Equal(t, []string{"user-2"}, reacted.Reactions["🔥"])

	reacted, err = fixture.messages.React(ctx, sent.ID, "user-2", "🔥")
	require.NoError(t, err)
	require.Empty(t, reacted.Reactions)

	_, err = fixture.messages.React(ctx, "missing", "user-2", "🔥")
	require.ErrorIs(t, err, ErrMessageNotFound)
}
