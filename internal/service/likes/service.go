package likes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

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
	defaultLikersLimit = 20
	maxLikersLimit     = 50
)

// Match is a mutual like seen from one side.
type Match struct {
	UserID    uint64            `json:"user_id"`
	Profile   profiles.Snapshot `json:"profile"`
	ChatID    string            `json:"chat_id"`
	HasChat   bool              `json:"has_chat"`
	MatchedAt *time.Time        `json:"matched_at,omitempty"`
}

// Result is returned by RecordInteraction.
type Result struct {
	IsMatch bool   `json:"is_match"`
	Match   *Match `json:"match,omitempty"`
}

// Liker is someone who liked the caller.
type Liker struct {
	UserID  uint64             `json:"user_id"`
	Profile *profiles.Snapshot `json:"profile,omitempty"`
	LikedAt time.Time          `json:"liked_at"`
}

type LikersPage struct {
	Likers              []Liker `json:"likers"`
	NextPaginationToken *string `json:"next_pagination_token,omitempty"`
}

// Service implements likes, passes and matches.
// It contains the business logic on top of repository and cache layers.
type Service struct {
	appCtx        *app.AppContext
	likeRepo      *repository.LikeRepository
	chatRepo      *repository.ChatRepository
	userRepo      *repository.UserRepository
	profiles      *profiles.Service
	notifications *notifications.Service
	now           func() time.Time
}

func NewLikeService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		likeRepo:      repository.NewLikeRepository(appCtx.DB),
		chatRepo:      repository.NewChatRepository(appCtx.DB),
		userRepo:      repository.NewUserRepository(appCtx.DB),
		profiles:      profiles.NewProfileService(appCtx),
		notifications: notifications.NewNotificationService(appCtx),
		now:           time.Now,
	}
}

// RecordInteraction stores likerID's like or pass on likedID and evaluates
// whether it completed a match.
//
// Behavior:
//   - likerID != likedID, likeType is "like" or "pass", likedID must exist.
//   - The decision row is upserted; a later decision overwrites an earlier one.
//   - pass: ends any match between the pair and deletes its chat; both users
//     get "unmatched" (and "chat_deleted" when a chat existed). No notification.
//   - like without a reciprocal like: IsMatch=false. The liked user gets a
//     "like" notification when the row newly became a like.
//   - like with a reciprocal like: both rows are flipped to mutual in one
//     conditional update. Only the call that flipped them notifies both users;
//     repeated calls still return IsMatch=true but create nothing.
//   - Everything above runs in one transaction; notifications are pushed
//     after commit. The reciprocal row is read under a row lock and a
//     transaction lost to a deadlock is run once more.
//   - pass on a matched pair ends the match and deletes its chat.
func (s *Service) RecordInteraction(ctx context.Context, likerID, likedID uint64, likeType string) (Result, error) {
	s.log(ctx).Debug("RecordInteraction called", "liker", likerID, "liked", likedID, "type", likeType)

	if likerID == likedID {
		return Result{}, svcErr.InvalidArgument("cannot like or pass yourself")
	}
	if likeType != db.LikeTypeLike && likeType != db.LikeTypePass {
		return Result{}, svcErr.InvalidArgument("type must be like or pass")
	}

	names, err := s.userRepo.GetMany(ctx, []uint64{likerID, likedID})
	if err != nil {
		return Result{}, svcErr.Map(err)
	}
	if liked, ok := names[likedID]; !ok || !liked.Active {
		return Result{}, svcErr.NotFound("user not found")
	}

	var (
		created  []db.Notification
		isMatch  bool
		newMatch bool
		ended    bool
		endedID  string
		existing *string
	)
	// Two reciprocal likes racing on InnoDB each hold their own row and wait
	// on the other's, so one of them is picked as the deadlock victim. Its
	// retry sees the committed reciprocal like.
	err = repository.RetryOnDeadlock(func() error {
		created, isMatch, newMatch, ended, endedID, existing = nil, false, false, false, "", nil
		return s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			likes := s.likeRepo.WithTx(tx)
			chats := s.chatRepo.WithTx(tx)

			prev, hadPrev, err := likes.Get(ctx, likerID, likedID)
			if err != nil {
				return err
			}
			if err := likes.Upsert(ctx, likerID, likedID, likeType); err != nil {
				return err
			}

			if likeType == db.LikeTypePass {
				if hadPrev && prev.IsMutual {
					ended = true
					if err := likes.ClearMutual(ctx, likerID, likedID); err != nil {
						return err
					}
				}
				chat, err := chats.FindByPair(ctx, likerID, likedID)
				switch {
				case errors.Is(err, gorm.ErrRecordNotFound):
					return nil
				case err != nil:
					return err
				}
				ended, endedID = true, chat.ID
				if err := chats.Delete(ctx, chat.ID); err != nil {
					return err
				}
				return likes.SetChatID(ctx, likerID, likedID, nil)
			}

			reciprocal, liked, err := likes.GetForUpdate(ctx, likedID, likerID)
			if err != nil {
				return err
			}
			if !liked || reciprocal.LikeType != db.LikeTypeLike {
				if hadPrev && prev.LikeType == db.LikeTypeLike {
					return nil
				}
				created, err = s.notifications.Create(ctx, tx, notifications.Draft{
					UserID:  likedID,
					Type:    db.NotificationLike,
					Title:   "Someone likes you",
					Message: "You have a new like. Keep swiping to find out who!",
					Data:    map[string]any{"liker_id": likerID},
				})
				return err
			}

			isMatch = true
			existing = reciprocal.ChatID
			flipped, err := likes.MarkMutual(ctx, likerID, likedID, s.now().UTC())
			if err != nil {
				return err
			}
			if flipped == 0 {
				return nil
			}
			newMatch = true
			created, err = s.notifications.Create(ctx, tx,
				matchDraft(likerID, likedID, names[likedID].FirstName),
				matchDraft(likedID, likerID, names[likerID].FirstName),
			)
			return err
		})
	})
	if err != nil {
		s.log(ctx).Error("RecordInteraction failed", "liker", likerID, "liked", likedID, "err", err)
		return Result{}, svcErr.Map(err)
	}

	s.invalidateCounts(ctx, likerID, likedID)
	s.notifications.Publish(ctx, created)
	if ended {
		s.log(ctx).Info("match ended by pass", "liker", likerID, "liked", likedID, "chat_id", endedID)
		s.emitMatchEnded(ctx, likerID, likedID, endedID)
	}

	if !isMatch {
		return Result{IsMatch: false}, nil
	}
	if newMatch {
		s.log(ctx).Info("new match", "user_a", likerID, "user_b", likedID)
	}

	snap, err := s.profiles.Snapshot(ctx, likedID)
	if err != nil {
		return Result{}, err
	}
	match := &Match{UserID: likedID, Profile: snap, ChatID: chatref.PreparationKey(likerID, likedID)}
	if existing != nil {
		match.ChatID, match.HasChat = *existing, true
	}
	return Result{IsMatch: true, Match: match}, nil
}

func matchDraft(userID, otherID uint64, otherName string) notifications.Draft {
	return notifications.Draft{
		UserID:  userID,
		Type:    db.NotificationMatch,
		Title:   "It's a match!",
		Message: fmt.Sprintf("You and %s liked each other.", otherName),
		Data: map[string]any{
			"match_user_id": otherID,
			"chat_id":       chatref.PreparationKey(userID, otherID),
		},
	}
}

// ListMatches returns userID's matches, newest first. Without includeChats
// only matches that have no persisted chat yet are listed.
func (s *Service) ListMatches(ctx context.Context, userID uint64, includeChats bool) ([]Match, error) {
	s.log(ctx).Debug("ListMatches called", "user_id", userID, "include_chats", includeChats)

	rows, err := s.likeRepo.ListMutual(ctx, userID, includeChats)
	if err != nil {
		s.log(ctx).Error("ListMutual failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	ids := make([]uint64, 0, len(rows))
	for _, l := range rows {
		ids = append(ids, l.LikedID)
	}
	snaps, err := s.profiles.Snapshots(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(rows))
	for _, l := range rows {
		snap, ok := snaps[l.LikedID]
		if !ok {
			continue
		}
		m := Match{
			UserID:    l.LikedID,
			Profile:   snap,
			ChatID:    chatref.PreparationKey(userID, l.LikedID),
			MatchedAt: l.MatchedAt,
		}
		if l.ChatID != nil {
			m.ChatID, m.HasChat = *l.ChatID, true
		}
		out = append(out, m)
	}
	return out, nil
}

// Unmatch ends the relationship between userID and otherID.
//
// Behavior:
//   - The pair's chat and its messages are deleted.
//   - Both like rows are removed and userID's row is re-recorded as a pass,
//     so the pair does not resurface in discovery.
//   - Both users receive "unmatched".
//   - NotFound when the pair was neither matched nor chatting.
func (s *Service) Unmatch(ctx context.Context, userID, otherID uint64) error {
	s.log(ctx).Debug("Unmatch called", "user_id", userID, "other_id", otherID)

	if userID == otherID {
		return svcErr.InvalidArgument("cannot unmatch yourself")
	}

	var chatID string
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		likes := s.likeRepo.WithTx(tx)
		chats := s.chatRepo.WithTx(tx)

		mutual, err := likes.IsMutual(ctx, userID, otherID)
		if err != nil {
			return err
		}
		chat, err := chats.FindByPair(ctx, userID, otherID)
		switch {
		case err == nil:
			chatID = chat.ID
			if err := chats.Delete(ctx, chat.ID); err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		case !mutual:
			return svcErr.NotFound("match not found")
		}

		if err := likes.DeletePair(ctx, userID, otherID); err != nil {
			return err
		}
		return likes.Upsert(ctx, userID, otherID, db.LikeTypePass)
	})
	if err != nil {
		if svcErr.Code(err) == codes.Unknown {
			s.log(ctx).Error("Unmatch failed", "user_id", userID, "other_id", otherID, "err", err)
		}
		return svcErr.Map(err)
	}

	s.invalidateCounts(ctx, userID, otherID)
	s.log(ctx).Info("unmatched", "user_id", userID, "other_id", otherID, "chat_id", chatID)
	s.emitMatchEnded(ctx, userID, otherID, chatID)
	return nil
}

// emitMatchEnded sends "unmatched" to both users and, when the pair had a
// chat, "chat_deleted".
func (s *Service) emitMatchEnded(ctx context.Context, initiator, otherID uint64, chatID string) {
	for _, pair := range [][2]uint64{{initiator, otherID}, {otherID, initiator}} {
		s.appCtx.Realtime.Emit(ctx, realtime.UserRoom(pair[0]), realtime.Event{
			Type: realtime.EventUnmatched,
			Data: map[string]any{
				"user_id":    pair[1],
				"chat_id":    chatID,
				"initiator":  initiator,
				"unmatch_at": s.now().UTC(),
			},
		})
	}
	if chatID == "" {
		return
	}
	realtime.EmitToUsers(ctx, s.appCtx.Realtime, realtime.Event{
		Type: realtime.EventChatDeleted,
		Data: map[string]any{"chat_id": chatID, "deleted_by": initiator},
	}, initiator, otherID)
}

// ListLikedYou returns people who liked userID, excluding those userID passed.
func (s *Service) ListLikedYou(ctx context.Context, userID uint64, token *string, limit int) (LikersPage, error) {
	return s.listLikers(ctx, userID, token, limit, s.likeRepo.GetLikers)
}

// ListNewLikedYou is ListLikedYou minus people userID already liked back.
func (s *Service) ListNewLikedYou(ctx context.Context, userID uint64, token *string, limit int) (LikersPage, error) {
	return s.listLikers(ctx, userID, token, limit, s.likeRepo.GetNewLikers)
}

type likersFunc func(ctx context.Context, recipientID uint64, token *string, limit int) ([]db.Like, *string, error)

func (s *Service) listLikers(ctx context.Context, userID uint64, token *string, limit int, list likersFunc) (LikersPage, error) {
	limit = pagination.ClampLimit(limit, defaultLikersLimit, maxLikersLimit)

	rows, next, err := list(ctx, userID, token, limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidToken) {
			return LikersPage{}, svcErr.InvalidArgument("invalid pagination token")
		}
		return LikersPage{}, svcErr.Map(err)
	}

	ids := make([]uint64, 0, len(rows))
	for _, l := range rows {
		ids = append(ids, l.LikerID)
	}
	snaps, err := s.profiles.Snapshots(ctx, ids)
	if err != nil {
		return LikersPage{}, err
	}

	page := LikersPage{Likers: make([]Liker, 0, len(rows)), NextPaginationToken: next}
	for _, l := range rows {
		liker := Liker{UserID: l.LikerID, LikedAt: l.UpdatedAt}
		if snap, ok := snaps[l.LikerID]; ok {
			liker.Profile = &snap
		}
		page.Likers = append(page.Likers, liker)
	}
	return page, nil
}

// CountLikedYou returns how many users liked userID.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:userID), refreshing the TTL.
//  2. On a miss or a malformed value, falls back to the DB.
//  3. The DB value is cached with a 1h TTL.
func (s *Service) CountLikedYou(ctx context.Context, userID uint64) (int64, error) {
	rc := s.appCtx.RedisCache
	key := rc.KeyForLikeCount(userID)

	if n, ok, err := rc.GetCount(ctx, key); err == nil && ok {
		return n, nil
	} else if err != nil {
		s.log(ctx).Warn("like count cache read failed", "user_id", userID, "err", err)
	}

	count, err := s.likeRepo.CountLikers(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	_ = rc.SetCount(ctx, key, count)
	return count, nil
}

// invalidateCounts drops the cached like counters of both users: a decision
// changes the liked user's count and, for a pass, possibly the liker's.
func (s *Service) invalidateCounts(ctx context.Context, userIDs ...uint64) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, s.appCtx.RedisCache.KeyForLikeCount(id))
	}
	if err := s.appCtx.RedisCache.Invalidate(ctx, keys...); err != nil {
		s.log(ctx).Warn("failed to invalidate like counters", "err", err)
	}
}

// log returns the request-scoped logger when the caller attached one.
func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}
