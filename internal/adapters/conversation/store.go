// Package conversation persists dialogue history and the query log.
// Clean Architecture: Adapter implementing ports.ConversationStore and
// ports.QueryLog on sqlite via gorm.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/erkebulan/ustazai/internal/domain/entities"
	"github.com/erkebulan/ustazai/internal/domain/ports"
)

// historyLimit is how many turns are retained per user.
const historyLimit = 20

// Message is one stored conversation turn.
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    int64  `gorm:"index"`
	Role      string `gorm:"size:16"`
	Text      string
	CreatedAt time.Time
}

// QueryRecord is one logged ask outcome.
type QueryRecord struct {
	ID              uint  `gorm:"primaryKey"`
	UserID          int64 `gorm:"index"`
	RequestID       string
	QueryText       string
	NormalizedText  string
	MatchedQuestion string
	AnswerText      string
	Similarity      float64
	Answered        bool
	CreatedAt       time.Time
}

// Store keeps conversations and the query log in one sqlite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Message{}, &QueryRecord{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// History returns the user's last turns, oldest to newest.
func (s *Store) History(ctx context.Context, userID int64) ([]entities.Turn, error) {
	var msgs []Message
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(historyLimit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	turns := make([]entities.Turn, len(msgs))
	for i, m := range msgs {
		// Reverse: query returned newest first.
		turns[len(msgs)-1-i] = entities.Turn{Role: m.Role, Text: m.Text, CreatedAt: m.CreatedAt}
	}
	return turns, nil
}

// Append adds one turn and trims the user's history to the retention limit.
func (s *Store) Append(ctx context.Context, userID int64, role, text string) error {
	db := s.db.WithContext(ctx)
	if err := db.Create(&Message{UserID: userID, Role: role, Text: text}).Error; err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}

	return db.Where(
		"user_id = ? AND id NOT IN (?)",
		userID,
		db.Model(&Message{}).Select("id").Where("user_id = ?", userID).Order("id DESC").Limit(historyLimit),
	).Delete(&Message{}).Error
}

// Clear discards the user's history.
func (s *Store) Clear(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Message{}).Error
}

// Log persists one ask outcome.
func (s *Store) Log(ctx context.Context, entry ports.QueryLogEntry) error {
	rec := QueryRecord{
		UserID:          entry.UserID,
		RequestID:       entry.RequestID,
		QueryText:       entry.QueryText,
		NormalizedText:  entry.NormalizedText,
		MatchedQuestion: entry.MatchedQuestion,
		AnswerText:      entry.AnswerText,
		Similarity:      entry.Similarity,
		Answered:        entry.Answered,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}
