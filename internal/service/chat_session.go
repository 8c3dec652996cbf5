package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/observability"
	"github.com/noah-isme/studyquest-api/internal/realtime"
)

const (
	// DefaultChatRequestTimeout bounds every store call made by a session.
	DefaultChatRequestTimeout = 15 * time.Second
	chatSessionEventBuffer    = 64
	// chatSessionQueueLimit is how many undelivered events a session holds
	// before it gives up on its consumer and closes.
	chatSessionQueueLimit = 1024
)

var (
	// ErrNotAuthenticated indicates an anonymous session tried to write.
	ErrNotAuthenticated = errors.New("you must be logged in to send messages")
	// ErrNoActiveRoom indicates a write before any room was joined.
	ErrNoActiveRoom = errors.New("join a group before sending messages")
	// ErrRoomNotReady indicates a write while the joined room is still being checked.
	ErrRoomNotReady = errors.New("group is still opening, try again shortly")
	// ErrRoomRequired indicates a join without a room id.
	ErrRoomRequired = errors.New("room id is required")
	// ErrSessionClosed indicates the session was already closed.
	ErrSessionClosed = errors.New("chat session closed")
)

// Session notices shown to the user.
const (
	noticeLoadFailed      = "failed to load messages"
	noticeSendFailed      = "failed to send message"
	noticeJoinFailed      = "failed to open group"
	noticeLiveUnavailable = "live updates are unavailable, showing history only"
)

// ChatSessionOptions identifies the session user and tunes its timeouts.
type ChatSessionOptions struct {
	UserID         string
	UserName       string
	AvatarURL      string
	RequestTimeout time.Duration
	Backoff        realtime.Backoff
}

// ActiveSession is a snapshot of the room a session is attached to.
type ActiveSession struct {
	RoomID      string
	RoomName    string
	Messages    []dto.ChatMessageResponse
	TypingUsers []dto.TypingUser
	Loading     bool
	LiveUpdates bool
}

// ChatSession drives one connected client: it owns the active room, its
// subscriptions, and the ordered message list. Every room join bumps a
// generation counter and every asynchronous result carries the generation
// it started with, so results from a previous room are dropped.
type ChatSession struct {
	groups   GroupService
	messages MessageService
	typing   TypingService
	opts     ChatSessionOptions
	logger   zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	events  chan dto.ChatSessionEvent
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once

	mu          sync.Mutex
	closed      bool
	generation  uint64
	roomID      string
	roomName    string
	opened      bool
	loading     bool
	live        bool
	messageList []dto.ChatMessageResponse
	seen        map[string]int
	pending     []dto.ChatMessageResponse
	typingUsers []dto.TypingUser
	subs        []realtime.Subscription
	cancelRoom  context.CancelFunc
	queue       []dto.ChatSessionEvent
	overflowed  bool
}

// NewChatSession constructs a session bound to ctx. Close must be called to
// release it.
func NewChatSession(ctx context.Context, groups GroupService, messages MessageService, typing TypingService, opts ChatSessionOptions, logger zerolog.Logger) *ChatSession {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultChatRequestTimeout
	}
	if opts.Backoff.Attempts <= 0 {
		opts.Backoff = realtime.DefaultBackoff()
	}
	opts.UserID = strings.TrimSpace(opts.UserID)

	baseCtx, cancel := context.WithCancel(ctx)
	session := &ChatSession{
		groups:   groups,
		messages: messages,
		typing:   typing,
		opts:     opts,
		logger:   logger.With().Str("component", "chat_session").Str("user_id", opts.UserID).Logger(),
		baseCtx:  baseCtx,
		cancel:   cancel,
		events:   make(chan dto.ChatSessionEvent, chatSessionEventBuffer),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		seen:     make(map[string]int),
	}

	go session.pump()

	observability.ChatConnectionsTotal().Inc()
	observability.ChatConnectionsActive().Inc()
	return session
}

// Events streams session events in emission order until Close.
func (s *ChatSession) Events() <-chan dto.ChatSessionEvent {
	return s.events
}

// Authenticated reports whether the session has a user.
func (s *ChatSession) Authenticated() bool {
	return s.opts.UserID != ""
}

// Snapshot returns a copy of the active room state.
func (s *ChatSession) Snapshot() ActiveSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]dto.ChatMessageResponse, len(s.messageList))
	copy(messages, s.messageList)
	typing := make([]dto.TypingUser, len(s.typingUsers))
	copy(typing, s.typingUsers)

	return ActiveSession{
		RoomID:      s.roomID,
		RoomName:    s.roomName,
		Messages:    messages,
		TypingUsers: typing,
		Loading:     s.loading,
		LiveUpdates: s.live,
	}
}

// RefreshGroups emits the user's group directory.
func (s *ChatSession) RefreshGroups(ctx context.Context) {
	if !s.Authenticated() {
		s.emit(dto.ChatSessionEvent{Type: dto.SessionEventGroups, Payload: dto.GroupDirectoryResponse{Groups: []dto.ChatGroupResponse{}}})
		return
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	directory := s.groups.ListForUser(callCtx, s.opts.UserID)
	s.emit(dto.ChatSessionEvent{Type: dto.SessionEventGroups, Payload: directory})
	if directory.Warning != "" {
		s.notice("", dto.NoticeWarn, directory.Warning)
	}
}

// Join switches the session to roomID. The previous room is released
// before anything of the new room is opened; the room is then checked,
// subscribed and loaded in the background and reported as events. Writes
// are refused until the check has passed, and a failed check leaves the
// session without a room.
func (s *ChatSession) Join(roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrRoomRequired
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	released := s.detachLocked()
	s.generation++
	gen := s.generation
	s.roomID = roomID
	s.loading = true
	roomCtx, cancel := context.WithCancel(s.baseCtx)
	s.cancelRoom = cancel
	s.mu.Unlock()

	s.release(released)

	go s.openRoom(roomCtx, gen, roomID)
	return nil
}

// Leave releases the active room. It is a no-op when no room is active.
func (s *ChatSession) Leave() {
	s.mu.Lock()
	if s.roomID == "" {
		s.mu.Unlock()
		return
	}
	released := s.detachLocked()
	s.generation++
	s.mu.Unlock()

	s.release(released)
}

// Send stores a message in the active room and appends the confirmed row.
// The later push of the same row is recognised by id and skipped.
func (s *ChatSession) Send(ctx context.Context, content string, attachments []dto.AttachmentPayload) (dto.ChatMessageResponse, error) {
	if !s.Authenticated() {
		return dto.ChatMessageResponse{}, ErrNotAuthenticated
	}

	s.mu.Lock()
	roomID, gen, err := s.writableRoomLocked()
	s.mu.Unlock()
	if err != nil {
		return dto.ChatMessageResponse{}, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	message, err := s.messages.Send(callCtx, dto.ChatSendRequest{
		GroupID:     roomID,
		SenderID:    s.opts.UserID,
		Content:     content,
		Attachments: attachments,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("failed to send chat message")
		s.notice(roomID, dto.NoticeError, noticeSendFailed)
		return dto.ChatMessageResponse{}, err
	}

	s.mu.Lock()
	if s.current(gen) {
		if s.loading {
			s.pending = append(s.pending, message)
		} else {
			s.appendLocked(message)
		}
	}
	s.mu.Unlock()

	return message, nil
}

// Typing broadcasts a typing signal for the session user in the active room.
func (s *ChatSession) Typing(ctx context.Context) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	roomID, _, err := s.writableRoomLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	err = s.typing.NotifyTyping(callCtx, roomID, dto.TypingUser{
		UserID:    s.opts.UserID,
		UserName:  s.opts.UserName,
		AvatarURL: s.opts.AvatarURL,
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("room_id", roomID).Msg("typing broadcast failed")
	}
	return err
}

// writableRoomLocked returns the room writes go to. The room must have
// passed its access check.
func (s *ChatSession) writableRoomLocked() (string, uint64, error) {
	switch {
	case s.closed:
		return "", 0, ErrSessionClosed
	case s.roomID == "":
		return "", 0, ErrNoActiveRoom
	case !s.opened:
		return "", 0, ErrRoomNotReady
	}
	return s.roomID, s.generation, nil
}

// Close releases the room and ends the event stream. It is idempotent.
func (s *ChatSession) Close() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)

		s.mu.Lock()
		released := s.detachLocked()
		s.generation++
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		s.release(released)
		observability.ChatConnectionsActive().Dec()
	})
}

type releasedRoom struct {
	subs   []realtime.Subscription
	cancel context.CancelFunc
}

// detachLocked clears the active room state and hands back what must be
// released once the lock is dropped.
func (s *ChatSession) detachLocked() releasedRoom {
	released := releasedRoom{subs: s.subs, cancel: s.cancelRoom}
	s.subs = nil
	s.cancelRoom = nil
	s.roomID = ""
	s.roomName = ""
	s.opened = false
	s.loading = false
	s.live = false
	s.messageList = nil
	s.seen = make(map[string]int)
	s.pending = nil
	s.typingUsers = nil
	return released
}

func (s *ChatSession) release(room releasedRoom) {
	if room.cancel != nil {
		room.cancel()
	}
	for _, sub := range room.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Debug().Err(err).Msg("failed to release subscription")
		}
	}
}

func (s *ChatSession) current(gen uint64) bool {
	return !s.closed && s.generation == gen
}

func (s *ChatSession) openRoom(ctx context.Context, gen uint64, roomID string) {
	group, err := s.lookupRoom(ctx, roomID)
	if err != nil {
		s.mu.Lock()
		stale := !s.current(gen)
		var released releasedRoom
		if !stale {
			released = s.detachLocked()
			s.generation++
		}
		s.mu.Unlock()
		if stale {
			return
		}
		s.release(released)

		message := noticeJoinFailed
		if errors.Is(err, ErrGroupNotFound) || errors.Is(err, ErrNotGroupMember) {
			message = err.Error()
		}
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("failed to open chat room")
		s.notice(roomID, dto.NoticeError, message)
		return
	}

	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	s.roomName = group.Name
	s.opened = true
	s.mu.Unlock()

	live := s.subscribe(ctx, gen, roomID)
	if !live {
		s.mu.Lock()
		stale := !s.current(gen)
		s.mu.Unlock()
		if stale {
			return
		}
		s.notice(roomID, dto.NoticeWarn, noticeLiveUnavailable)
	}

	s.loadHistory(ctx, gen, roomID)
}

func (s *ChatSession) lookupRoom(ctx context.Context, roomID string) (dto.ChatGroupResponse, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	group, err := s.groups.Get(callCtx, roomID)
	if err != nil {
		return dto.ChatGroupResponse{}, err
	}
	if group.IsPrivate {
		if !s.Authenticated() {
			return dto.ChatGroupResponse{}, ErrNotGroupMember
		}
		member, err := s.groups.IsMember(callCtx, roomID, s.opts.UserID)
		if err != nil {
			return dto.ChatGroupResponse{}, err
		}
		if !member {
			return dto.ChatGroupResponse{}, ErrNotGroupMember
		}
	}
	return group, nil
}

// subscribe opens the message and typing subscriptions with bounded
// retries and reports whether live updates are active.
func (s *ChatSession) subscribe(ctx context.Context, gen uint64, roomID string) bool {
	var opened []realtime.Subscription
	err := s.opts.Backoff.Retry(ctx, func(attemptCtx context.Context) error {
		messageSub, err := s.messages.Subscribe(attemptCtx, roomID,
			func(message dto.ChatMessageResponse) { s.onInsert(gen, message) },
			WithUpdates(func(message dto.ChatMessageResponse) { s.onUpdate(gen, message) }),
		)
		if err != nil {
			return err
		}

		typingSub, err := s.typing.SubscribeTyping(attemptCtx, roomID, s.opts.UserID, func(users []dto.TypingUser) {
			s.onTyping(gen, users)
		})
		if err != nil {
			_ = messageSub.Unsubscribe()
			return err
		}

		opened = []realtime.Subscription{messageSub, typingSub}
		return nil
	}, func(attempt int, err error) {
		outcome := "retry"
		if attempt >= s.opts.Backoff.Attempts {
			outcome = "exhausted"
		}
		observability.RealtimeSubscribeRetries().WithLabelValues(outcome).Inc()
		s.logger.Warn().Err(err).Int("attempt", attempt).Str("room_id", roomID).Msg("chat subscription attempt failed")
	})
	if err != nil {
		return false
	}

	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		s.release(releasedRoom{subs: opened})
		return true
	}
	s.subs = append(s.subs, opened...)
	s.live = true
	s.mu.Unlock()
	return true
}

func (s *ChatSession) loadHistory(ctx context.Context, gen uint64, roomID string) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	history, err := s.messages.Load(callCtx, roomID)

	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	s.loading = false
	if err != nil {
		pending := s.pending
		s.pending = nil
		for _, message := range pending {
			s.appendLocked(message)
		}
		s.mu.Unlock()

		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("failed to load chat history")
		s.notice(roomID, dto.NoticeError, noticeLoadFailed)
		return
	}

	merged := make([]dto.ChatMessageResponse, 0, len(history)+len(s.pending))
	seen := make(map[string]int, len(history)+len(s.pending))
	for _, message := range append(history, s.pending...) {
		if _, ok := seen[message.ID]; ok {
			continue
		}
		seen[message.ID] = len(merged)
		merged = append(merged, message)
	}
	s.messageList = merged
	s.seen = seen
	s.pending = nil

	snapshot := make([]dto.ChatMessageResponse, len(merged))
	copy(snapshot, merged)
	s.emitLocked(dto.ChatSessionEvent{
		Type:    dto.SessionEventHistory,
		RoomID:  roomID,
		Payload: dto.HistoryPayload{RoomName: s.roomName, Messages: snapshot},
	})
	s.mu.Unlock()
}

func (s *ChatSession) onInsert(gen uint64, message dto.ChatMessageResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return
	}

	if s.loading {
		s.pending = append(s.pending, message)
		return
	}
	s.appendLocked(message)
}

// onUpdate replaces a known message in place; order never changes.
func (s *ChatSession) onUpdate(gen uint64, message dto.ChatMessageResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return
	}

	idx, ok := s.seen[message.ID]
	if !ok {
		return
	}
	s.messageList[idx] = message
	s.emitLocked(dto.ChatSessionEvent{Type: dto.SessionEventMessage, RoomID: s.roomID, Payload: message})
}

func (s *ChatSession) onTyping(gen uint64, users []dto.TypingUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return
	}

	s.typingUsers = users
	s.emitLocked(dto.ChatSessionEvent{Type: dto.SessionEventTyping, RoomID: s.roomID, Payload: dto.TypingPayload{Users: users}})
}

func (s *ChatSession) appendLocked(message dto.ChatMessageResponse) {
	if _, ok := s.seen[message.ID]; ok {
		return
	}
	s.seen[message.ID] = len(s.messageList)
	s.messageList = append(s.messageList, message)
	s.emitLocked(dto.ChatSessionEvent{Type: dto.SessionEventMessage, RoomID: s.roomID, Payload: message})
}

func (s *ChatSession) notice(roomID, level, message string) {
	s.emit(dto.ChatSessionEvent{
		Type:    dto.SessionEventNotice,
		RoomID:  roomID,
		Payload: dto.NoticePayload{Level: level, Message: message},
	})
}

func (s *ChatSession) emit(event dto.ChatSessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(event)
}

// emitLocked queues the event for the pump goroutine. It never blocks, so
// bus deliveries and timers are not held up by a slow consumer. A consumer
// that falls too far behind gets the session closed.
func (s *ChatSession) emitLocked(event dto.ChatSessionEvent) {
	if s.closed || s.overflowed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if len(s.queue) >= chatSessionQueueLimit {
		s.overflowed = true
		s.logger.Warn().Int("queued", len(s.queue)).Msg("chat session consumer too slow, closing")
		go s.Close()
		return
	}

	s.queue = append(s.queue, event)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump hands queued events to the consumer in order and closes the stream
// once the session is closed.
func (s *ChatSession) pump() {
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			event := s.queue[0]
			s.queue[0] = dto.ChatSessionEvent{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.events <- event:
			case <-s.done:
				return
			}
		}
	}
}

func (s *ChatSession) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = s.baseCtx
	}
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}
