package chatstore

import (
	"context"
	"time"

	"github.com/jackc/pgtype"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sentichat/sentichat/pkg/db"
	"github.com/sentichat/sentichat/pkg/db/models"
)

const maxLockAttempts = 5

// PostgresStore keeps conversations in the chat_conversations and chat_turns tables.
type PostgresStore struct {
	dbc *db.DB
}

func NewPostgresStore(dbc *db.DB) *PostgresStore {
	return &PostgresStore{dbc: dbc}
}

func (s *PostgresStore) Append(ctx context.Context, userID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	rows := make([]models.ChatTurn, 0, len(turns))
	for _, t := range turns {
		row, err := toModel(userID, t)
		if err != nil {
			return storageError("append", err)
		}
		rows = append(rows, row)
	}

	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A clear that held the lock first may have deleted the row we waited on, in which
		// case the conversation is created again.
		locked := false
		for attempt := 0; attempt < maxLockAttempts && !locked; attempt++ {
			conv := models.ChatConversation{UserID: userID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conv).Error; err != nil {
				return errors.WithMessage(err, "could not create conversation")
			}

			// Holding the conversation row lock until commit serializes writes for this user.
			var err error
			locked, err = lockConversation(tx, userID)
			if err != nil {
				return err
			}
		}
		if !locked {
			return errors.Errorf("conversation for %s disappeared while appending", userID)
		}

		var lastSeq int64
		if err := tx.Model(&models.ChatTurn{}).
			Where("user_id = ?", userID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&lastSeq).Error; err != nil {
			return errors.WithMessage(err, "could not determine last turn")
		}

		for i := range rows {
			rows[i].Seq = lastSeq + int64(i) + 1
		}
		if err := tx.Create(&rows).Error; err != nil {
			return errors.WithMessage(err, "could not insert turns")
		}

		return tx.Model(&models.ChatConversation{UserID: userID}).Update("updated_at", time.Now()).Error
	})
	return storageError("append", err)
}

func (s *PostgresStore) Fetch(ctx context.Context, userID string) ([]Turn, error) {
	var rows []models.ChatTurn
	if err := s.dbc.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, storageError("fetch", err)
	}

	turns := make([]Turn, 0, len(rows))
	for _, row := range rows {
		t, err := fromModel(row)
		if err != nil {
			return nil, storageError("fetch", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *PostgresStore) Clear(ctx context.Context, userID string) error {
	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockConversation(tx, userID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.ChatTurn{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&models.ChatConversation{}).Error
	})
	return storageError("clear", err)
}

// lockConversation takes the row lock on the user's conversation and reports whether it exists.
func lockConversation(tx *gorm.DB, userID string) (bool, error) {
	var convs []models.ChatConversation
	res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&convs)
	if res.Error != nil {
		return false, errors.WithMessage(res.Error, "could not lock conversation")
	}
	return len(convs) > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return storageError("ping", s.dbc.Ping(ctx))
}

func toModel(userID string, t Turn) (models.ChatTurn, error) {
	row := models.ChatTurn{
		UserID:    userID,
		Kind:      t.Kind,
		Content:   t.Text,
		CreatedAt: t.CreatedAt,
	}
	if t.ImageRef != "" {
		ref := t.ImageRef
		row.ImageRef = &ref
	}

	var md interface{}
	if len(t.Metadata) > 0 {
		md = t.Metadata
	}
	if err := row.Metadata.Set(md); err != nil {
		return row, errors.Wrap(err, "could not encode turn metadata")
	}
	return row, nil
}

func fromModel(row models.ChatTurn) (Turn, error) {
	t := Turn{
		Kind:      row.Kind,
		Text:      row.Content,
		CreatedAt: row.CreatedAt,
	}
	if row.ImageRef != nil {
		t.ImageRef = *row.ImageRef
	}
	if row.Metadata.Status == pgtype.Present {
		if err := row.Metadata.AssignTo(&t.Metadata); err != nil {
			return t, errors.Wrap(err, "could not decode turn metadata")
		}
	}
	return t, nil
}
