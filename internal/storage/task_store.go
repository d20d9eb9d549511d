package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type taskRecord struct {
	ID            string `gorm:"column:id;primaryKey"`
	UserID        string `gorm:"column:user_id;index;not null"`
	Title         string `gorm:"column:title;not null"`
	Description   string `gorm:"column:description;not null"`
	StartDateUnix int64  `gorm:"column:start_date_unix;not null"`
	EndDateUnix   *int64 `gorm:"column:end_date_unix"`
	Status        string `gorm:"column:status;not null"`
	Done          bool   `gorm:"column:done;not null"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (taskRecord) TableName() string {
	return "tasks"
}

type databaseTaskStore struct {
	db          *gorm.DB
	driverLabel string
}

// CreateTask inserts a task owned by its user. Done is derived from the
// status before the insert.
func (store *databaseTaskStore) CreateTask(ctx context.Context, task *Task) error {
	task.Done = task.Status == TaskStatusCompleted
	record := taskRecordFrom(task)
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("task_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// ListTasks returns the user's tasks, newest first.
func (store *databaseTaskStore) ListTasks(ctx context.Context, userID string) ([]Task, error) {
	var records []taskRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_unix desc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("task_store.list.%s: %w", store.driverLabel, err)
	}
	tasks := make([]Task, 0, len(records))
	for index := range records {
		tasks = append(tasks, *taskFrom(&records[index]))
	}
	return tasks, nil
}

// UpdateTask applies a partial update and stamps the modification time.
func (store *databaseTaskStore) UpdateTask(ctx context.Context, userID string, taskID string, patch TaskPatch, now time.Time) (*Task, error) {
	var updated *Task
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record taskRecord
		takeErr := tx.Where("id = ? AND user_id = ?", taskID, userID).Take(&record).Error
		if takeErr != nil {
			return takeErr
		}
		applyTaskUpdate(&record, patch, now)
		if saveErr := tx.Save(&record).Error; saveErr != nil {
			return saveErr
		}
		updated = taskFrom(&record)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task_store.update.%s: %w", store.driverLabel, ErrNotFound)
		}
		return nil, fmt.Errorf("task_store.update.%s: %w", store.driverLabel, err)
	}
	return updated, nil
}

// DeleteTask removes one task scoped to its owner.
func (store *databaseTaskStore) DeleteTask(ctx context.Context, userID string, taskID string) error {
	result := store.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID, userID).
		Delete(&taskRecord{})
	if result.Error != nil {
		return fmt.Errorf("task_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task_store.delete.%s: %w", store.driverLabel, ErrNotFound)
	}
	return nil
}

// applyTaskUpdate is the single mutation path for task writes. Done is
// always recomputed from the status here, never written by callers.
func applyTaskUpdate(record *taskRecord, patch TaskPatch, now time.Time) {
	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.Description != nil {
		record.Description = *patch.Description
	}
	if patch.Status != nil {
		record.Status = *patch.Status
	}
	if patch.EndDate != nil {
		endUnix := patch.EndDate.UTC().Unix()
		record.EndDateUnix = &endUnix
	}
	record.Done = record.Status == TaskStatusCompleted
	record.UpdatedAtUnix = now.UTC().Unix()
}

func taskRecordFrom(task *Task) taskRecord {
	record := taskRecord{
		ID:            task.ID,
		UserID:        task.UserID,
		Title:         task.Title,
		Description:   task.Description,
		StartDateUnix: task.StartDate.UTC().Unix(),
		Status:        task.Status,
		Done:          task.Done,
		CreatedAtUnix: task.CreatedAt.UTC().Unix(),
		UpdatedAtUnix: task.UpdatedAt.UTC().Unix(),
	}
	if task.EndDate != nil {
		endUnix := task.EndDate.UTC().Unix()
		record.EndDateUnix = &endUnix
	}
	return record
}

func taskFrom(record *taskRecord) *Task {
	task := &Task{
		ID:          record.ID,
		UserID:      record.UserID,
		Title:       record.Title,
		Description: record.Description,
		StartDate:   time.Unix(record.StartDateUnix, 0).UTC(),
		Status:      record.Status,
		Done:        record.Done,
		CreatedAt:   time.Unix(record.CreatedAtUnix, 0).UTC(),
		UpdatedAt:   time.Unix(record.UpdatedAtUnix, 0).UTC(),
	}
	if record.EndDateUnix != nil {
		endDate := time.Unix(*record.EndDateUnix, 0).UTC()
		task.EndDate = &endDate
	}
	return task
}
