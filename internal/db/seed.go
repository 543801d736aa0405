package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var demoFirstNames = []string{
	"Liam", "Noah", "Oliver", "Elijah", "James", "Lucas", "Mason", "Ethan", "Logan", "Aiden",
	"Olivia", "Emma", "Ava", "Sophia", "Isabella", "Mia", "Amelia", "Harper", "Evelyn", "Luna",
}

var demoBios = []string{
	"Coffee first, adventures second.",
	"Looking for someone to share tacos with.",
	"Weekend hiker, weekday coder.",
	"Dog person. Will show you pictures.",
	"Ask me about my sourdough starter.",
}

// tables in delete order (children first)
var seedTables = []string{"messages", "notifications", "chats", "users_likes", "user_photos", "users"}

// SeedTestData resets the database and populates it with demo users and likes.
//
// Behavior:
//  1. Clears existing data in every application table.
//  2. Creates 20 users (10 male, 10 female) with password "password".
//  3. Generates likes/passes with ~70% likes; every 3rd pair is a mutual match
//     with is_mutual set on both rows.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB, log *slog.Logger) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := clearTables(db); err != nil {
		return err
	}
	log.Info("cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := make([]User, 0, len(demoFirstNames))
	for i, name := range demoFirstNames {
		gender, interested := "male", "female"
		if i >= 10 {
			gender, interested = "female", "male"
		}
		users = append(users, User{
			Email:        fmt.Sprintf("user%d@example.com", i+1),
			PasswordHash: string(hash),
			FirstName:    name,
			LastName:     "Demo",
			Gender:       gender,
			InterestedIn: interested,
			Birthdate:    time.Now().AddDate(-(20 + r.Intn(20)), -r.Intn(12), 0).UTC(),
			Bio:          demoBios[r.Intn(len(demoBios))],
			Active:       true,
			LastLoginAt:  time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour),
		})
	}
	if err := db.Create(&users).Error; err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	log.Info("seeded users", "count", len(users))

	counter := 0
	for _, actor := range users {
		for j := 0; j < 8; j++ {
			target := users[r.Intn(len(users))]
			if target.ID == actor.ID || target.Gender == actor.Gender {
				continue
			}

			likeType := LikeTypePass
			if r.Intn(100) < 70 {
				likeType = LikeTypeLike
			}

			// guarantee mutual likes every 3rd pair
			if counter%3 == 0 {
				if err := seedMutual(db, actor.ID, target.ID); err != nil {
					return err
				}
				counter++
				continue
			}

			if err := upsertLike(db, Like{LikerID: actor.ID, LikedID: target.ID, LikeType: likeType}); err != nil {
				return fmt.Errorf("failed to seed like: %w", err)
			}
			counter++
		}
	}
	log.Info("seeded likes", "count", counter)

	return nil
}

// SeedMinimalTestData wipes the DB and inserts a small deterministic dataset:
//   - user1 (male), user2 (female), user3 (female), user4 (female)
//   - user1 <-> user2 mutual match, no chat yet
//   - user3 -> user1 like (user1 passed user3)
//   - user4 -> user1 like (pending, not answered)
func SeedMinimalTestData(db *gorm.DB) error {
	if err := clearTables(db); err != nil {
		return err
	}

	born := time.Date(1995, 6, 15, 0, 0, 0, 0, time.UTC)
	users := []User{
		{ID: 1, Email: "u1@test.com", PasswordHash: "x", FirstName: "Alex", Gender: "male", InterestedIn: "female", Birthdate: born, Active: true},
		{ID: 2, Email: "u2@test.com", PasswordHash: "x", FirstName: "Bea", Gender: "female", InterestedIn: "male", Birthdate: born.AddDate(3, 0, 0), Active: true},
		{ID: 3, Email: "u3@test.com", PasswordHash: "x", FirstName: "Cleo", Gender: "female", InterestedIn: "male", Birthdate: born.AddDate(-5, 0, 0), Active: true},
		{ID: 4, Email: "u4@test.com", PasswordHash: "x", FirstName: "Dana", Gender: "female", InterestedIn: "male", Birthdate: born.AddDate(8, 0, 0), Active: true},
	}
	if err := db.Create(&users).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	likes := []Like{
		{LikerID: 1, LikedID: 2, LikeType: LikeTypeLike, IsMutual: true, MatchedAt: &now}, // user1 → user2
		{LikerID: 2, LikedID: 1, LikeType: LikeTypeLike, IsMutual: true, MatchedAt: &now}, // user2 → user1 (mutual)
		{LikerID: 3, LikedID: 1, LikeType: LikeTypeLike},                                  // user3 → user1
		{LikerID: 1, LikedID: 3, LikeType: LikeTypePass},                                  // user1 → user3 (pass)
		{LikerID: 4, LikedID: 1, LikeType: LikeTypeLike},                                  // user4 → user1 (pending)
	}
	return db.Create(&likes).Error
}

func clearTables(db *gorm.DB) error {
	for _, table := range seedTables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// Reset auto-increment sequences
	switch db.Dialector.Name() {
	case "mysql":
		for _, table := range seedTables {
			db.Exec("ALTER TABLE " + table + " AUTO_INCREMENT = 1")
		}
	case "sqlite":
		for _, table := range seedTables {
			db.Exec("DELETE FROM sqlite_sequence WHERE name = ?", table)
		}
	}
	return nil
}

func seedMutual(db *gorm.DB, a, b uint64) error {
	now := time.Now().UTC()
	for _, l := range []Like{
		{LikerID: a, LikedID: b, LikeType: LikeTypeLike, IsMutual: true, MatchedAt: &now},
		{LikerID: b, LikedID: a, LikeType: LikeTypeLike, IsMutual: true, MatchedAt: &now},
	} {
		if err := upsertLike(db, l); err != nil {
			return fmt.Errorf("failed to seed mutual like: %w", err)
		}
	}
	return nil
}

func upsertLike(db *gorm.DB, l Like) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "liker_id"}, {Name: "liked_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"like_type", "is_mutual", "matched_at", "updated_at"}),
	}).Create(&l).Error
}
