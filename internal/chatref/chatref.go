// Package chatref names conversations on the wire. A matched pair without a
// persisted chat is addressed by its preparation key "<low>_<high>"; a
// persisted chat by its id "chat_<unix-millis>_<suffix>".
package chatref

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind int

const (
	Preparation Kind = iota + 1
	Persisted
)

func (k Kind) String() string {
	switch k {
	case Preparation:
		return "preparation"
	case Persisted:
		return "persisted"
	default:
		return "unknown"
	}
}

const persistedPrefix = "chat_"

var ErrInvalidRef = errors.New("invalid chat reference")

// Ref is either a preparation chat (User1 < User2) or a persisted chat ID.
type Ref struct {
	Kind   Kind
	ChatID string
	User1  uint64
	User2  uint64
}

// ForPair returns the preparation ref of an unordered pair.
func ForPair(a, b uint64) Ref {
	if a > b {
		a, b = b, a
	}
	return Ref{Kind: Preparation, User1: a, User2: b}
}

// ForChat returns the ref of a persisted chat.
func ForChat(chatID string) Ref {
	return Ref{Kind: Persisted, ChatID: chatID}
}

// Parse reads a wire chat reference.
func Parse(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, persistedPrefix) && len(raw) > len(persistedPrefix) {
		return ForChat(raw), nil
	}
	left, right, ok := strings.Cut(raw, "_")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, raw)
	}
	a, errA := strconv.ParseUint(left, 10, 64)
	b, errB := strconv.ParseUint(right, 10, 64)
	if errA != nil || errB != nil || a == 0 || b == 0 || a == b {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, raw)
	}
	return ForPair(a, b), nil
}

// String is the wire form of the ref.
func (r Ref) String() string {
	if r.Kind == Persisted {
		return r.ChatID
	}
	return PreparationKey(r.User1, r.User2)
}

// Has reports whether userID belongs to a preparation ref.
func (r Ref) Has(userID uint64) bool {
	return r.User1 == userID || r.User2 == userID
}

// Other returns the member of a preparation ref that is not userID.
func (r Ref) Other(userID uint64) uint64 {
	if r.User1 == userID {
		return r.User2
	}
	return r.User1
}

// PreparationKey is the deterministic key of a pair, smaller id first.
func PreparationKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d_%d", a, b)
}

// NewChatID generates a persisted chat id.
func NewChatID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", persistedPrefix, now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
