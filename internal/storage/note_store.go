package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	noteListDefaultLimit = 50
	noteListMaxLimit     = 200
)

type noteRecord struct {
	ID            string   `gorm:"column:id;primaryKey"`
	UserID        string   `gorm:"column:user_id;index;not null"`
	Title         string   `gorm:"column:title;not null"`
	Content       string   `gorm:"column:content;not null"`
	Pinned        bool     `gorm:"column:pinned;not null"`
	Tags          []string `gorm:"column:tags;serializer:json"`
	CreatedAtUnix int64    `gorm:"column:created_at_unix;not null"`
	UpdatedAtUnix int64    `gorm:"column:updated_at_unix;not null"`
}

func (noteRecord) TableName() string {
	return "notes"
}

type databaseNoteStore struct {
	db          *gorm.DB
	driverLabel string
}

// CreateNote inserts a note owned by its user.
func (store *databaseNoteStore) CreateNote(ctx context.Context, note *Note) error {
	record := noteRecordFrom(note)
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("note_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// ListNotes returns the user's notes, pinned first then most recently
// updated. Tags are stored as a JSON blob, so tag containment is filtered in
// memory after the scoped query; paging is applied after that filter.
func (store *databaseNoteStore) ListNotes(ctx context.Context, userID string, filter NoteFilter) ([]Note, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = noteListDefaultLimit
	}
	if limit > noteListMaxLimit {
		limit = noteListMaxLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := store.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Pinned != nil {
		query = query.Where("pinned = ?", *filter.Pinned)
	}
	query = query.Order("pinned desc").Order("updated_at_unix desc")

	if filter.Tag == "" {
		query = query.Offset(offset).Limit(limit)
	}

	var records []noteRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("note_store.list.%s: %w", store.driverLabel, err)
	}

	notes := make([]Note, 0, len(records))
	for index := range records {
		note := noteFrom(&records[index])
		if filter.Tag != "" && !containsTag(note.Tags, filter.Tag) {
			continue
		}
		notes = append(notes, *note)
	}
	if filter.Tag != "" {
		notes = pageNotes(notes, offset, limit)
	}
	return notes, nil
}

// NoteByID loads one note scoped to its owner.
func (store *databaseNoteStore) NoteByID(ctx context.Context, userID string, noteID string) (*Note, error) {
	var record noteRecord
	err := store.db.WithContext(ctx).Where("id = ? AND user_id = ?", noteID, userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("note_store.get.%s: %w", store.driverLabel, ErrNotFound)
		}
		return nil, fmt.Errorf("note_store.get.%s: %w", store.driverLabel, err)
	}
	return noteFrom(&record), nil
}

// UpdateNote applies a partial update and stamps the modification time.
func (store *databaseNoteStore) UpdateNote(ctx context.Context, userID string, noteID string, patch NotePatch, now time.Time) (*Note, error) {
	var updated *Note
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record noteRecord
		takeErr := tx.Where("id = ? AND user_id = ?", noteID, userID).Take(&record).Error
		if takeErr != nil {
			return takeErr
		}
		applyNoteUpdate(&record, patch, now)
		if saveErr := tx.Save(&record).Error; saveErr != nil {
			return saveErr
		}
		updated = noteFrom(&record)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("note_store.update.%s: %w", store.driverLabel, ErrNotFound)
		}
		return nil, fmt.Errorf("note_store.update.%s: %w", store.driverLabel, err)
	}
	return updated, nil
}

// DeleteNote removes one note scoped to its owner.
func (store *databaseNoteStore) DeleteNote(ctx context.Context, userID string, noteID string) error {
	result := store.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", noteID, userID).
		Delete(&noteRecord{})
	if result.Error != nil {
		return fmt.Errorf("note_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("note_store.delete.%s: %w", store.driverLabel, ErrNotFound)
	}
	return nil
}

// applyNoteUpdate is the single mutation path for note writes; every field
// change and the updated timestamp flow through here rather than through
// storage-layer hooks. Title and content are trimmed so both write paths
// store the same shape.
func applyNoteUpdate(record *noteRecord, patch NotePatch, now time.Time) {
	if patch.Title != nil {
		record.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		record.Content = strings.TrimSpace(*patch.Content)
	}
	if patch.Pinned != nil {
		record.Pinned = *patch.Pinned
	}
	if patch.Tags != nil {
		record.Tags = *patch.Tags
	}
	record.UpdatedAtUnix = now.UTC().Unix()
}

func containsTag(tags []string, wanted string) bool {
	for _, tag := range tags {
		if tag == wanted {
			return true
		}
	}
	return false
}

func pageNotes(notes []Note, offset int, limit int) []Note {
	if offset >= len(notes) {
		return []Note{}
	}
	end := offset + limit
	if end > len(notes) {
		end = len(notes)
	}
	return notes[offset:end]
}

func noteRecordFrom(note *Note) noteRecord {
	return noteRecord{
		ID:            note.ID,
		UserID:        note.UserID,
		Title:         note.Title,
		Content:       note.Content,
		Pinned:        note.Pinned,
		Tags:          note.Tags,
		CreatedAtUnix: note.CreatedAt.UTC().Unix(),
		UpdatedAtUnix: note.UpdatedAt.UTC().Unix(),
	}
}

func noteFrom(record *noteRecord) *Note {
	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	return &Note{
		ID:        record.ID,
		UserID:    record.UserID,
		Title:     record.Title,
		Content:   record.Content,
		Pinned:    record.Pinned,
		Tags:      tags,
		CreatedAt: time.Unix(record.CreatedAtUnix, 0).UTC(),
		UpdatedAt: time.Unix(record.UpdatedAtUnix, 0).UTC(),
	}
}
