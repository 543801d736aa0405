package db

import (
	"time"

	"gorm.io/datatypes"
)

// Like types stored in users_likes.like_type.
const (
	LikeTypeLike = "like"
	LikeTypePass = "pass"
)

// Notification types stored in notifications.type.
const (
	NotificationMatch   = "match"
	NotificationLike    = "like"
	NotificationMessage = "message"
	NotificationSystem  = "system"
)

// User table
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	FirstName    string `gorm:"size:64;not null"`
	LastName     string `gorm:"size:64"`
	Gender       string `gorm:"size:16;not null;index"`
	InterestedIn string `gorm:"size:16"`
	Birthdate    time.Time
	Bio          string   `gorm:"type:text"`
	Latitude     *float64 `gorm:"type:double"`
	Longitude    *float64 `gorm:"type:double"`
	Active       bool     `gorm:"default:true"`
	LastLoginAt  time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	Photos []Photo `gorm:"foreignKey:UserID"`
}

// Photo is an uploaded profile picture. Only the storage key is persisted;
// URLs are presigned on every read.
type Photo struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	UserID      uint64    `gorm:"not null;index:idx_photo_user_order,priority:1"`
	StorageKey  string    `gorm:"size:255;not null"`
	ContentType string    `gorm:"size:64"`
	Order       int       `gorm:"column:photo_order;not null;index:idx_photo_user_order,priority:2"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (Photo) TableName() string { return "user_photos" }

// Like represents a liker's like/pass decision on another user.
//
// Composite PK: (LikerID, LikedID)
//   - Ensures a single row per direction (overwrite guarantee).
//
// Invariant: IsMutual is true on both (A,B) and (B,A) exactly when both rows
// have LikeType = "like". ChatID is back-filled on both rows once the pair's
// chat is persisted.
type Like struct {
	LikerID   uint64     `gorm:"primaryKey;index:idx_liker_type_mutual,priority:1"`
	LikedID   uint64     `gorm:"primaryKey;index:idx_liked_type_updated,priority:1"`
	LikeType  string     `gorm:"size:8;not null;index:idx_liked_type_updated,priority:2;index:idx_liker_type_mutual,priority:2"`
	IsMutual  bool       `gorm:"not null;default:false;index:idx_liker_type_mutual,priority:3"`
	MatchedAt *time.Time
	ChatID    *string   `gorm:"size:64;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index:idx_liked_type_updated,priority:3,sort:desc"`
}

func (Like) TableName() string { return "users_likes" }

// Chat is a persisted conversation between two matched users.
//
// User1ID is always the smaller id of the pair, so the unique index on
// (user1_id, user2_id) guarantees at most one chat per unordered pair.
type Chat struct {
	ID            string `gorm:"primaryKey;size:64"`
	User1ID       uint64 `gorm:"not null;uniqueIndex:idx_chat_pair,priority:1"`
	User2ID       uint64 `gorm:"not null;uniqueIndex:idx_chat_pair,priority:2;index"`
	IsActive      bool   `gorm:"not null;default:false"`
	LastMessageAt *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// Other returns the participant that is not userID.
func (c Chat) Other(userID uint64) uint64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID uint64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

type Message struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ChatID    string `gorm:"size:64;not null;index:idx_message_chat_id,priority:1"`
	SenderID  uint64 `gorm:"not null"`
	Content   string `gorm:"type:text;not null"`
	IsRead    bool   `gorm:"not null;default:false"`
	ReadAt    *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type Notification struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	UserID      uint64         `gorm:"not null;index:idx_notification_user_created,priority:1"`
	Type        string         `gorm:"size:16;not null"`
	Title       string         `gorm:"size:255;not null"`
	Message     string         `gorm:"type:text"`
	Data        datatypes.JSON `gorm:"type:json"`
	IsRead      bool           `gorm:"not null;default:false"`
	IsDismissed bool           `gorm:"not null;default:false"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index:idx_notification_user_created,priority:2,sort:desc"`
}

// Models lists every table in migration order.
func Models() []any {
	return []any{&User{}, &Photo{}, &Like{}, &Chat{}, &Message{}, &Notification{}}
}

// OrderedPair returns (min, max) of two user ids.
func OrderedPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}
