package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/tweetheart/internal/auth"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/logger"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxFrameBytes = 64 << 10
)

// ChatGateway is what the socket needs from the chat workflow.
type ChatGateway interface {
	// JoinChat fails unless userID takes part in the persisted chat.
	JoinChat(ctx context.Context, userID uint64, chatID string) error
	// SendFromSocket sends content to a persisted chat or a preparation key
	// and returns the payload acknowledged to the sender.
	SendFromSocket(ctx context.Context, userID uint64, chatRef, content string) (any, error)
}

// SocketHandler upgrades authenticated requests to websockets and bridges
// them to the hub.
type SocketHandler struct {
	hub      *Hub
	chats    ChatGateway
	log      *slog.Logger
	upgrader websocket.Upgrader

	// base outlives requests; Close cancels it to end every session.
	base context.Context
	stop context.CancelFunc
}

func NewSocketHandler(hub *Hub, chats ChatGateway, allowedOrigins []string, log *slog.Logger) *SocketHandler {
	base, stop := context.WithCancel(context.Background())
	return &SocketHandler{
		base:  base,
		stop:  stop,
		hub:   hub,
		chats: chats,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Close ends every open socket session and any started afterwards. Hijacked
// connections are not closed by http.Server.Shutdown, so the server calls
// this from RegisterOnShutdown.
func (h *SocketHandler) Close() {
	h.stop()
}

// Register mounts the socket endpoint on an authenticated route group.
func (h *SocketHandler) Register(r *gin.RouterGroup) {
	r.GET("/socket", h.Serve)
}

// Serve runs one socket connection until the client goes away.
func (h *SocketHandler) Serve(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		svcErr.Abort(c, svcErr.Unauthenticated("authentication required"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.log.Debug("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	s := &socketSession{
		hub:    h.hub,
		chats:  h.chats,
		conn:   conn,
		userID: userID,
		sub:    h.hub.NewSubscriber(),
		log:    h.log.With("user_id", userID),
	}
	s.run(c.Request.Context(), h.base)
}

type socketSession struct {
	hub    *Hub
	chats  ChatGateway
	conn   *websocket.Conn
	userID uint64
	sub    *Subscriber
	log    *slog.Logger
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type chatPayload struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

func (s *socketSession) run(parent, base context.Context) {
	ctx, cancel := context.WithCancel(logger.IntoContext(parent, s.log))
	defer cancel()
	defer context.AfterFunc(base, cancel)()
	defer s.conn.Close()
	defer s.hub.Remove(s.sub)

	s.log.Debug("socket connected")
	go s.writeLoop(ctx, cancel)
	s.readLoop(ctx)
	s.log.Debug("socket disconnected")
}

func (s *socketSession) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("socket read failed", "error", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.handle(ctx, msg)
	}
}

// writeLoop is the only goroutine writing to the connection.
func (s *socketSession) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			// unblocks readLoop when the server ends the session
			s.conn.Close()
			return
		case ev := <-s.sub.Events():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				s.log.Debug("socket write failed", "event", ev.Type, "error", err)
				s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		}
	}
}

func (s *socketSession) handle(ctx context.Context, msg inbound) {
	switch msg.Event {
	case EventJoinUserRoom:
		// the room is always the authenticated user's; any id in the payload is ignored
		room := UserRoom(s.userID)
		s.hub.Join(s.sub, room)
		s.reply(EventRoomJoined, map[string]any{"room": room, "user_id": s.userID})

	case EventJoinChat:
		var p chatPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
			s.replyError(msg.Event, svcErr.InvalidArgument("chat_id is required"))
			return
		}
		if err := s.chats.JoinChat(ctx, s.userID, p.ChatID); err != nil {
			s.replyError(msg.Event, err)
			return
		}
		room := ChatRoom(p.ChatID)
		s.hub.Join(s.sub, room)
		s.reply(EventRoomJoined, map[string]any{"room": room, "chat_id": p.ChatID})

	case EventLeaveChat:
		var p chatPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ChatID == "" {
			s.replyError(msg.Event, svcErr.InvalidArgument("chat_id is required"))
			return
		}
		room := ChatRoom(p.ChatID)
		if !s.sub.In(room) {
			s.replyError(msg.Event, svcErr.FailedPrecondition("not in this chat room"))
			return
		}
		s.hub.Leave(s.sub, room)
		s.reply(EventRoomLeft, map[string]any{"room": room, "chat_id": p.ChatID})

	case EventSendMessage:
		var p chatPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ChatID == "" {
			s.replyError(msg.Event, svcErr.InvalidArgument("chat_id is required"))
			return
		}
		result, err := s.chats.SendFromSocket(ctx, s.userID, p.ChatID, p.Content)
		if err != nil {
			s.replyError(msg.Event, err)
			return
		}
		s.reply(EventMessageSent, result)

	default:
		s.replyError(msg.Event, svcErr.InvalidArgument("unknown event"))
	}
}

func (s *socketSession) reply(event string, data any) {
	if !s.sub.Offer(Event{Type: event, Data: data}) {
		s.log.Warn("socket buffer full, reply dropped", "event", event)
	}
}

func (s *socketSession) replyError(event string, err error) {
	st := status.Convert(svcErr.Map(err))
	if st.Code() == codes.Internal {
		s.log.Error("socket event failed", "event", event, "error", err)
	}
	s.reply(EventError, map[string]any{"event": event, "message": st.Message()})
}

// originChecker allows same-origin requests, requests without an Origin
// header and the configured origins. "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[strings.TrimRight(origin, "/")]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
