package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryNoteStore is an in-memory NoteStore intended for tests and dev.
type MemoryNoteStore struct {
	mutex sync.Mutex
	notes map[string]*Note
	order uint64
	seq   map[string]uint64
}

// NewMemoryNoteStore creates an empty in-memory note store.
func NewMemoryNoteStore() *MemoryNoteStore {
	return &MemoryNoteStore{notes: make(map[string]*Note), seq: make(map[string]uint64)}
}

// CreateNote inserts a note owned by its user.
func (store *MemoryNoteStore) CreateNote(ctx context.Context, note *Note) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	clone := *note
	if clone.Tags == nil {
		clone.Tags = []string{}
	}
	store.order++
	store.seq[clone.ID] = store.order
	store.notes[clone.ID] = &clone
	return nil
}

// ListNotes mirrors the database store's ordering and filter semantics.
func (store *MemoryNoteStore) ListNotes(ctx context.Context, userID string, filter NoteFilter) ([]Note, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

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

	matched := make([]Note, 0)
	for _, note := range store.notes {
		if note.UserID != userID {
			continue
		}
		if filter.Pinned != nil && note.Pinned != *filter.Pinned {
			continue
		}
		if filter.Tag != "" && !containsTag(note.Tags, filter.Tag) {
			continue
		}
		matched = append(matched, *note)
	}
	sort.SliceStable(matched, func(left, right int) bool {
		if matched[left].Pinned != matched[right].Pinned {
			return matched[left].Pinned
		}
		return matched[left].UpdatedAt.After(matched[right].UpdatedAt)
	})
	return pageNotes(matched, offset, limit), nil
}

// NoteByID loads one note scoped to its owner.
func (store *MemoryNoteStore) NoteByID(ctx context.Context, userID string, noteID string) (*Note, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	note, exists := store.notes[noteID]
	if !exists || note.UserID != userID {
		return nil, fmt.Errorf("note_store.get.memory: %w", ErrNotFound)
	}
	clone := *note
	return &clone, nil
}

// UpdateNote applies a partial update and stamps the modification time.
func (store *MemoryNoteStore) UpdateNote(ctx context.Context, userID string, noteID string, patch NotePatch, now time.Time) (*Note, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	note, exists := store.notes[noteID]
	if !exists || note.UserID != userID {
		return nil, fmt.Errorf("note_store.update.memory: %w", ErrNotFound)
	}
	if patch.Title != nil {
		note.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		note.Content = strings.TrimSpace(*patch.Content)
	}
	if patch.Pinned != nil {
		note.Pinned = *patch.Pinned
	}
	if patch.Tags != nil {
		note.Tags = *patch.Tags
	}
	note.UpdatedAt = now.UTC()
	clone := *note
	return &clone, nil
}

// DeleteNote removes one note scoped to its owner.
func (store *MemoryNoteStore) DeleteNote(ctx context.Context, userID string, noteID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	note, exists := store.notes[noteID]
	if !exists || note.UserID != userID {
		return fmt.Errorf("note_store.delete.memory: %w", ErrNotFound)
	}
	delete(store.notes, noteID)
	delete(store.seq, noteID)
	return nil
}

// MemoryTaskStore is an in-memory TaskStore intended for tests and dev.
type MemoryTaskStore struct {
	mutex sync.Mutex
	tasks map[string]*Task
	order uint64
	seq   map[string]uint64
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*Task), seq: make(map[string]uint64)}
}

// CreateTask inserts a task owned by its user, deriving done from status.
func (store *MemoryTaskStore) CreateTask(ctx context.Context, task *Task) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	clone := *task
	clone.Done = clone.Status == TaskStatusCompleted
	task.Done = clone.Done
	store.order++
	store.seq[clone.ID] = store.order
	store.tasks[clone.ID] = &clone
	return nil
}

// ListTasks returns the user's tasks, newest first.
func (store *MemoryTaskStore) ListTasks(ctx context.Context, userID string) ([]Task, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	matched := make([]Task, 0)
	for _, task := range store.tasks {
		if task.UserID == userID {
			matched = append(matched, *task)
		}
	}
	sort.SliceStable(matched, func(left, right int) bool {
		return store.seq[matched[left].ID] > store.seq[matched[right].ID]
	})
	return matched, nil
}

// UpdateTask applies a partial update, rederiving done from the status.
func (store *MemoryTaskStore) UpdateTask(ctx context.Context, userID string, taskID string, patch TaskPatch, now time.Time) (*Task, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	task, exists := store.tasks[taskID]
	if !exists || task.UserID != userID {
		return nil, fmt.Errorf("task_store.update.memory: %w", ErrNotFound)
	}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.EndDate != nil {
		endDate := patch.EndDate.UTC()
		task.EndDate = &endDate
	}
	task.Done = task.Status == TaskStatusCompleted
	task.UpdatedAt = now.UTC()
	clone := *task
	return &clone, nil
}

// DeleteTask removes one task scoped to its owner.
func (store *MemoryTaskStore) DeleteTask(ctx context.Context, userID string, taskID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	task, exists := store.tasks[taskID]
	if !exists || task.UserID != userID {
		return fmt.Errorf("task_store.delete.memory: %w", ErrNotFound)
	}
	delete(store.tasks, taskID)
	delete(store.seq, taskID)
	return nil
}
