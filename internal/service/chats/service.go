package chats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/grpc/codes"
	"gorm.io/gorm"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/chatref"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/logger"
	"github.com/oggyb/tweetheart/internal/realtime"
	"github.com/oggyb/tweetheart/internal/repository"
	"github.com/oggyb/tweetheart/internal/service/notifications"
	"github.com/oggyb/tweetheart/internal/service/profiles"
	"github.com/oggyb/tweetheart/internal/utils/pagination"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 100
	maxMessageLength     = 2000
)

// Message is the client view of a message row.
type Message struct {
	ID        uint64     `json:"id"`
	ChatID    string     `json:"chat_id"`
	SenderID  uint64     `json:"sender_id"`
	Content   string     `json:"content"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Chat is a persisted conversation seen by one participant.
type Chat struct {
	ID            string            `json:"id"`
	OtherUser     profiles.Snapshot `json:"other_user"`
	LastMessage   *Message          `json:"last_message,omitempty"`
	UnreadCount   int64             `json:"unread_count"`
	IsActive      bool              `json:"is_active"`
	LastMessageAt *time.Time        `json:"last_message_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ChatUpdate is the payload of new_chat_created and chat_activated.
type ChatUpdate struct {
	Chat
	PreparationKey string   `json:"preparation_key"`
	SenderID       uint64   `json:"sender_id,omitempty"`
	Message        *Message `json:"message,omitempty"`
}

// SendResult is returned to the sender of a message.
type SendResult struct {
	Message        Message `json:"message"`
	ChatID         string  `json:"chat_id"`
	PreparationKey string  `json:"preparation_key"`
	Created        bool    `json:"chat_created"`
}

type MessagesPage struct {
	Messages            []Message `json:"messages"`
	NextPaginationToken *string   `json:"next_pagination_token,omitempty"`
}

// Service implements the chat promotion workflow: a matched pair is
// addressed by its preparation key until the first message persists a chat.
type Service struct {
	appCtx        *app.AppContext
	chatRepo      *repository.ChatRepository
	messageRepo   *repository.MessageRepository
	likeRepo      *repository.LikeRepository
	profiles      *profiles.Service
	notifications *notifications.Service
	now           func() time.Time
}

func NewChatService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		chatRepo:      repository.NewChatRepository(appCtx.DB),
		messageRepo:   repository.NewMessageRepository(appCtx.DB),
		likeRepo:      repository.NewLikeRepository(appCtx.DB),
		profiles:      profiles.NewProfileService(appCtx),
		notifications: notifications.NewNotificationService(appCtx),
		now:           time.Now,
	}
}

var _ realtime.ChatGateway = (*Service)(nil)

// EnsureChat returns the persisted chat of the pair, creating it when absent.
//
// Behavior:
//   - Insert with ON CONFLICT DO NOTHING against the unique pair index, then
//     re-read the authoritative row when the insert lost.
//   - created is true only for the caller whose insert won.
//   - chat_id is back-filled on both like rows on every call, so a winner
//     that failed half-way is repaired by the next caller.
//
// The caller is responsible for checking that the pair is matched.
func (s *Service) EnsureChat(ctx context.Context, a, b uint64) (chat db.Chat, created bool, err error) {
	chat, err = s.chatRepo.FindByPair(ctx, a, b)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		chat = db.Chat{ID: chatref.NewChatID(s.now()), User1ID: a, User2ID: b}
		created, err = s.chatRepo.CreateIfAbsent(ctx, &chat)
		if err != nil {
			return db.Chat{}, false, err
		}
		if !created {
			if chat, err = s.chatRepo.FindByPair(ctx, a, b); err != nil {
				return db.Chat{}, false, err
			}
		}
	default:
		return db.Chat{}, false, err
	}

	if err := s.likeRepo.SetChatID(ctx, a, b, &chat.ID); err != nil {
		return db.Chat{}, false, err
	}
	if created {
		s.log(ctx).Info("chat created", "chat_id", chat.ID, "user1", chat.User1ID, "user2", chat.User2ID)
	}
	return chat, created, nil
}

// CreateChat persists the chat of a matched pair without sending a message.
func (s *Service) CreateChat(ctx context.Context, userID, otherID uint64) (Chat, bool, error) {
	s.log(ctx).Debug("CreateChat called", "user_id", userID, "other_id", otherID)

	if userID == otherID {
		return Chat{}, false, svcErr.InvalidArgument("cannot chat with yourself")
	}
	exists, err := s.profiles.Exists(ctx, otherID)
	if err != nil {
		return Chat{}, false, err
	}
	if !exists {
		return Chat{}, false, svcErr.NotFound("user not found")
	}
	if err := s.requireMatch(ctx, userID, otherID); err != nil {
		return Chat{}, false, err
	}
	chat, created, err := s.EnsureChat(ctx, userID, otherID)
	if err != nil {
		s.log(ctx).Error("EnsureChat failed", "user_id", userID, "other_id", otherID, "err", err)
		return Chat{}, false, svcErr.Map(err)
	}

	snaps, err := s.profiles.Snapshots(ctx, []uint64{userID, otherID})
	if err != nil {
		return Chat{}, false, err
	}
	if created {
		s.emitPromotion(ctx, chat, userID, nil, snaps, 0)
	}
	unread, err := s.messageRepo.CountUnread(ctx, chat.ID, userID)
	if err != nil {
		return Chat{}, false, svcErr.Map(err)
	}
	view := toChat(chat, snaps[otherID], unread)
	return view, created, nil
}

// SendMessage stores a message from senderID.
//
// Behavior:
//   - Preparation ref: the sender must belong to the pair and the pair must
//     be matched; the chat is persisted by EnsureChat.
//   - Persisted ref: the chat must exist and the sender must take part in it.
//   - Persisted ref: the pair must still be matched.
//   - The message insert and the chat's activity update share a transaction.
//   - The message that activates the chat promotes it: both users get
//     new_chat_created and match_promoted and the receiver gets a message
//     notification. Later messages send chat_activated to both.
//     The sender always sees unread_count 0.
//   - new_message is emitted to the chat room.
func (s *Service) SendMessage(ctx context.Context, senderID uint64, ref chatref.Ref, content string) (SendResult, error) {
	s.log(ctx).Debug("SendMessage called", "sender_id", senderID, "chat", ref.String())

	content = strings.TrimSpace(content)
	if content == "" {
		return SendResult{}, svcErr.InvalidArgument("content is required")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return SendResult{}, svcErr.InvalidArgument(fmt.Sprintf("content exceeds %d characters", maxMessageLength))
	}

	chat, err := s.resolveForSend(ctx, senderID, ref)
	if err != nil {
		return SendResult{}, err
	}
	receiverID := chat.Other(senderID)

	snaps, err := s.profiles.Snapshots(ctx, []uint64{senderID, receiverID})
	if err != nil {
		return SendResult{}, err
	}

	msg := db.Message{ChatID: chat.ID, SenderID: senderID, Content: content}
	var (
		notes     []db.Notification
		activated bool
	)
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.messageRepo.WithTx(tx).Create(ctx, &msg); err != nil {
			return err
		}
		var err error
		if activated, err = s.chatRepo.WithTx(tx).RecordMessage(ctx, chat.ID, msg.CreatedAt); err != nil {
			return err
		}
		if !activated {
			return nil
		}
		notes, err = s.notifications.Create(ctx, tx, notifications.Draft{
			UserID:  receiverID,
			Type:    db.NotificationMessage,
			Title:   "New message",
			Message: fmt.Sprintf("%s sent you a message.", snaps[senderID].FirstName),
			Data:    map[string]any{"chat_id": chat.ID, "sender_id": senderID},
		})
		return err
	})
	if err != nil {
		s.log(ctx).Error("SendMessage failed", "sender_id", senderID, "chat_id", chat.ID, "err", err)
		return SendResult{}, svcErr.Map(err)
	}
	chat.IsActive = true
	chat.LastMessageAt = &msg.CreatedAt

	unread, err := s.messageRepo.CountUnread(ctx, chat.ID, receiverID)
	if err != nil {
		// the message is stored; fall back to the message just sent
		s.log(ctx).Warn("unread count failed", "chat_id", chat.ID, "err", err)
		unread = 1
	}

	view := toMessage(msg)
	if activated {
		s.emitPromotion(ctx, chat, senderID, &view, snaps, unread)
	} else {
		s.emitChatUpdate(ctx, realtime.EventChatActivated, chat, senderID, &view, snaps, unread)
	}
	s.notifications.Publish(ctx, notes)
	s.appCtx.Realtime.Emit(ctx, realtime.ChatRoom(chat.ID), realtime.Event{
		Type: realtime.EventNewMessage,
		Data: view,
	})

	return SendResult{
		Message:        view,
		ChatID:         chat.ID,
		PreparationKey: chatref.PreparationKey(chat.User1ID, chat.User2ID),
		Created:        activated,
	}, nil
}

func (s *Service) resolveForSend(ctx context.Context, senderID uint64, ref chatref.Ref) (db.Chat, error) {
	if ref.Kind == chatref.Persisted {
		chat, err := s.participantChat(ctx, senderID, ref.ChatID)
		if err != nil {
			return db.Chat{}, err
		}
		if err := s.requireMatch(ctx, senderID, chat.Other(senderID)); err != nil {
			return db.Chat{}, err
		}
		return chat, nil
	}

	if !ref.Has(senderID) {
		return db.Chat{}, svcErr.PermissionDenied("not a member of this chat")
	}
	otherID := ref.Other(senderID)
	if err := s.requireMatch(ctx, senderID, otherID); err != nil {
		return db.Chat{}, err
	}
	chat, _, err := s.EnsureChat(ctx, senderID, otherID)
	if err != nil {
		s.log(ctx).Error("EnsureChat failed", "sender_id", senderID, "other_id", otherID, "err", err)
		return db.Chat{}, svcErr.Map(err)
	}
	return chat, nil
}

// ListChats returns userID's persisted chats, most recently active first.
func (s *Service) ListChats(ctx context.Context, userID uint64) ([]Chat, error) {
	s.log(ctx).Debug("ListChats called", "user_id", userID)

	rows, err := s.chatRepo.ListForUser(ctx, userID)
	if err != nil {
		s.log(ctx).Error("ListForUser failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	ids := make([]string, 0, len(rows))
	others := make([]uint64, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.ID)
		others = append(others, c.Other(userID))
	}

	last, err := s.messageRepo.Last(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	unread, err := s.messageRepo.CountUnreadByChat(ctx, ids, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	snaps, err := s.profiles.Snapshots(ctx, others)
	if err != nil {
		return nil, err
	}

	out := make([]Chat, 0, len(rows))
	for _, c := range rows {
		snap, ok := snaps[c.Other(userID)]
		if !ok {
			continue
		}
		view := toChat(c, snap, unread[c.ID])
		if m, ok := last[c.ID]; ok {
			lm := toMessage(m)
			view.LastMessage = &lm
		}
		out = append(out, view)
	}
	slices.SortStableFunc(out, func(a, b Chat) int {
		return activity(b).Compare(activity(a))
	})
	return out, nil
}

func activity(c Chat) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// ListMessages returns a newest-first page of a chat's messages. A
// preparation chat has no messages yet and returns an empty page.
func (s *Service) ListMessages(ctx context.Context, userID uint64, ref chatref.Ref, token *string, limit int) (MessagesPage, error) {
	s.log(ctx).Debug("ListMessages called", "user_id", userID, "chat", ref.String())

	if ref.Kind == chatref.Preparation {
		if !ref.Has(userID) {
			return MessagesPage{}, svcErr.PermissionDenied("not a member of this chat")
		}
		return MessagesPage{Messages: []Message{}}, nil
	}
	if _, err := s.participantChat(ctx, userID, ref.ChatID); err != nil {
		return MessagesPage{}, err
	}

	limit = pagination.ClampLimit(limit, defaultMessagesLimit, maxMessagesLimit)
	rows, next, err := s.messageRepo.List(ctx, ref.ChatID, token, limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidToken) {
			return MessagesPage{}, svcErr.InvalidArgument("invalid pagination token")
		}
		return MessagesPage{}, svcErr.Map(err)
	}
	page := MessagesPage{Messages: make([]Message, 0, len(rows)), NextPaginationToken: next}
	for _, m := range rows {
		page.Messages = append(page.Messages, toMessage(m))
	}
	return page, nil
}

// MarkRead flips every unread message sent to userID in the chat and tells
// the other participant which ids were read. Nothing to flip is not an error.
func (s *Service) MarkRead(ctx context.Context, userID uint64, chatID string) ([]uint64, error) {
	s.log(ctx).Debug("MarkRead called", "user_id", userID, "chat_id", chatID)

	chat, err := s.participantChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	ids, err := s.messageRepo.UnreadIDs(ctx, chat.ID, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if len(ids) == 0 {
		return []uint64{}, nil
	}
	if _, err := s.messageRepo.MarkRead(ctx, ids, s.now().UTC()); err != nil {
		s.log(ctx).Error("MarkRead failed", "user_id", userID, "chat_id", chatID, "err", err)
		return nil, svcErr.Map(err)
	}

	s.appCtx.Realtime.Emit(ctx, realtime.UserRoom(chat.Other(userID)), realtime.Event{
		Type: realtime.EventMessagesRead,
		Data: map[string]any{
			"chat_id":     chat.ID,
			"reader_id":   userID,
			"message_ids": ids,
		},
	})
	return ids, nil
}

// DeleteChat removes a chat and its messages. The match survives and shows
// up again as a pending match for both users.
func (s *Service) DeleteChat(ctx context.Context, userID uint64, chatID string) error {
	s.log(ctx).Debug("DeleteChat called", "user_id", userID, "chat_id", chatID)

	var chat db.Chat
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chats := s.chatRepo.WithTx(tx)
		var err error
		if chat, err = chats.Get(ctx, chatID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return svcErr.NotFound("chat not found")
			}
			return err
		}
		if !chat.HasParticipant(userID) {
			return svcErr.PermissionDenied("not a member of this chat")
		}
		if err := chats.Delete(ctx, chat.ID); err != nil {
			return err
		}
		return s.likeRepo.WithTx(tx).SetChatID(ctx, chat.User1ID, chat.User2ID, nil)
	})
	if err != nil {
		if svcErr.Code(err) == codes.Unknown {
			s.log(ctx).Error("DeleteChat failed", "user_id", userID, "chat_id", chatID, "err", err)
		}
		return svcErr.Map(err)
	}

	s.log(ctx).Info("chat deleted", "chat_id", chat.ID, "by", userID)
	realtime.EmitToUsers(ctx, s.appCtx.Realtime, realtime.Event{
		Type: realtime.EventChatDeleted,
		Data: map[string]any{"chat_id": chat.ID, "deleted_by": userID},
	}, chat.User1ID, chat.User2ID)
	return nil
}

// JoinChat allows a participant to subscribe to a persisted chat's room.
func (s *Service) JoinChat(ctx context.Context, userID uint64, chatID string) error {
	ref, err := chatref.Parse(chatID)
	if err != nil {
		return svcErr.InvalidArgument("invalid chat_id")
	}
	if ref.Kind == chatref.Preparation {
		return svcErr.FailedPrecondition("chat has no messages yet")
	}
	_, err = s.participantChat(ctx, userID, ref.ChatID)
	return err
}

// SendFromSocket is SendMessage addressed by a wire chat reference.
func (s *Service) SendFromSocket(ctx context.Context, userID uint64, chatRef, content string) (any, error) {
	ref, err := chatref.Parse(chatRef)
	if err != nil {
		return nil, svcErr.InvalidArgument("invalid chat_id")
	}
	return s.SendMessage(ctx, userID, ref, content)
}

func (s *Service) participantChat(ctx context.Context, userID uint64, chatID string) (db.Chat, error) {
	chat, err := s.chatRepo.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.Chat{}, svcErr.NotFound("chat not found")
		}
		return db.Chat{}, svcErr.Map(err)
	}
	if !chat.HasParticipant(userID) {
		return db.Chat{}, svcErr.PermissionDenied("not a member of this chat")
	}
	return chat, nil
}

func (s *Service) requireMatch(ctx context.Context, a, b uint64) error {
	mutual, err := s.likeRepo.IsMutual(ctx, a, b)
	if err != nil {
		return svcErr.Map(err)
	}
	if !mutual {
		return svcErr.PermissionDenied("users are not matched")
	}
	return nil
}

// emitPromotion tells both users the pair moved from the Matches list to
// the Chats list.
func (s *Service) emitPromotion(ctx context.Context, chat db.Chat, senderID uint64, msg *Message, snaps map[uint64]profiles.Snapshot, receiverUnread int64) {
	s.emitChatUpdate(ctx, realtime.EventNewChatCreated, chat, senderID, msg, snaps, receiverUnread)

	key := chatref.PreparationKey(chat.User1ID, chat.User2ID)
	for _, id := range []uint64{chat.User1ID, chat.User2ID} {
		s.appCtx.Realtime.Emit(ctx, realtime.UserRoom(id), realtime.Event{
			Type: realtime.EventMatchPromoted,
			Data: map[string]any{
				"user_id":         chat.Other(id),
				"chat_id":         chat.ID,
				"preparation_key": key,
			},
		})
	}
}

func (s *Service) emitChatUpdate(ctx context.Context, event string, chat db.Chat, senderID uint64, msg *Message, snaps map[uint64]profiles.Snapshot, receiverUnread int64) {
	key := chatref.PreparationKey(chat.User1ID, chat.User2ID)
	for _, id := range []uint64{chat.User1ID, chat.User2ID} {
		var unread int64
		if id != senderID {
			unread = receiverUnread
		}
		view := toChat(chat, snaps[chat.Other(id)], unread)
		view.LastMessage = msg
		s.appCtx.Realtime.Emit(ctx, realtime.UserRoom(id), realtime.Event{
			Type: event,
			Data: ChatUpdate{Chat: view, PreparationKey: key, SenderID: senderID, Message: msg},
		})
	}
}

func toChat(c db.Chat, other profiles.Snapshot, unread int64) Chat {
	return Chat{
		ID:            c.ID,
		OtherUser:     other,
		UnreadCount:   unread,
		IsActive:      c.IsActive,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func toMessage(m db.Message) Message {
	return Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		IsRead:    m.IsRead,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}

// log returns the request-scoped logger when the caller attached one.
func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}
