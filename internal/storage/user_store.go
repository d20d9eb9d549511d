package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type userRecord struct {
	ID            string  `gorm:"column:id;primaryKey"`
	Email         string  `gorm:"column:email;uniqueIndex;not null"`
	Username      *string `gorm:"column:username;uniqueIndex"`
	PasswordHash  string  `gorm:"column:password_hash;not null"`
	CreatedAtUnix int64   `gorm:"column:created_at_unix;not null"`
	UpdatedAtUnix int64   `gorm:"column:updated_at_unix;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

// refreshTokenRecord rows are ordered by the auto-incrementing id, which
// realizes the FIFO eviction order of a user's session sequence.
type refreshTokenRecord struct {
	ID            uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        string `gorm:"column:user_id;index;not null"`
	Token         string `gorm:"column:token;index;not null"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
}

func (refreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

type databaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

// CreateUser inserts a user record. Unique constraint violations map to
// ErrDuplicate so a concurrent registration race surfaces as a conflict.
func (store *databaseUserStore) CreateUser(ctx context.Context, user *User) error {
	record := userRecordFrom(user)
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrDuplicate)
		}
		return fmt.Errorf("user_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// UserByID loads a user and its refresh-token sequence in insertion order.
func (store *databaseUserStore) UserByID(ctx context.Context, userID string) (*User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if err != nil {
		return nil, store.lookupError("by_id", err)
	}
	return store.hydrate(ctx, &record)
}

// UserByEmail loads a user by its normalized email.
func (store *databaseUserStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if err != nil {
		return nil, store.lookupError("by_email", err)
	}
	return store.hydrate(ctx, &record)
}

// UserByEmailOrUsername resolves either unique attribute in a single query.
func (store *databaseUserStore) UserByEmailOrUsername(ctx context.Context, email string, username string) (*User, error) {
	query := store.db.WithContext(ctx)
	if username != "" {
		query = query.Where("email = ? OR username = ?", email, username)
	} else {
		query = query.Where("email = ?", email)
	}
	var record userRecord
	if err := query.Take(&record).Error; err != nil {
		return nil, store.lookupError("by_email_or_username", err)
	}
	return store.hydrate(ctx, &record)
}

// AppendRefreshToken appends a token row and prunes the oldest rows past the
// bound inside one transaction.
func (store *databaseUserStore) AppendRefreshToken(ctx context.Context, userID string, tokenValue string, issuedAt time.Time, bound int) error {
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := refreshTokenRecord{
			UserID:        userID,
			Token:         tokenValue,
			CreatedAtUnix: issuedAt.UTC().Unix(),
		}
		if createErr := tx.Create(&record).Error; createErr != nil {
			return createErr
		}
		return pruneRefreshTokens(tx, userID, bound)
	})
	if err != nil {
		return fmt.Errorf("user_store.append_token.%s: %w", store.driverLabel, err)
	}
	return nil
}

// ReplaceRefreshToken removes exactly oldToken and appends newToken. The
// conditional delete guards against a concurrent rotation consuming the same
// token: whichever transaction deletes the row wins, the other observes
// replaced=false.
func (store *databaseUserStore) ReplaceRefreshToken(ctx context.Context, userID string, oldToken string, newToken string, issuedAt time.Time, bound int) (bool, error) {
	replaced := false
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ? AND token = ?", userID, oldToken).Delete(&refreshTokenRecord{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		replaced = true
		record := refreshTokenRecord{
			UserID:        userID,
			Token:         newToken,
			CreatedAtUnix: issuedAt.UTC().Unix(),
		}
		if createErr := tx.Create(&record).Error; createErr != nil {
			return createErr
		}
		return pruneRefreshTokens(tx, userID, bound)
	})
	if err != nil {
		return false, fmt.Errorf("user_store.replace_token.%s: %w", store.driverLabel, err)
	}
	return replaced, nil
}

// RemoveRefreshToken deletes the exact token row if present.
func (store *databaseUserStore) RemoveRefreshToken(ctx context.Context, userID string, tokenValue string) error {
	result := store.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, tokenValue).
		Delete(&refreshTokenRecord{})
	if result.Error != nil {
		return fmt.Errorf("user_store.remove_token.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

// ClearRefreshTokens drops the user's entire session sequence.
func (store *databaseUserStore) ClearRefreshTokens(ctx context.Context, userID string) error {
	result := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&refreshTokenRecord{})
	if result.Error != nil {
		return fmt.Errorf("user_store.clear_tokens.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

func pruneRefreshTokens(tx *gorm.DB, userID string, bound int) error {
	if bound <= 0 {
		return nil
	}
	var total int64
	if countErr := tx.Model(&refreshTokenRecord{}).Where("user_id = ?", userID).Count(&total).Error; countErr != nil {
		return countErr
	}
	excess := int(total) - bound
	if excess <= 0 {
		return nil
	}
	var staleIDs []uint64
	pluckErr := tx.Model(&refreshTokenRecord{}).
		Where("user_id = ?", userID).
		Order("id asc").
		Limit(excess).
		Pluck("id", &staleIDs).Error
	if pluckErr != nil {
		return pluckErr
	}
	return tx.Where("id IN ?", staleIDs).Delete(&refreshTokenRecord{}).Error
}

func (store *databaseUserStore) hydrate(ctx context.Context, record *userRecord) (*User, error) {
	var tokenRecords []refreshTokenRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", record.ID).
		Order("id asc").
		Find(&tokenRecords).Error
	if err != nil {
		return nil, fmt.Errorf("user_store.tokens.%s: %w", store.driverLabel, err)
	}
	user := userFrom(record)
	user.RefreshTokens = make([]RefreshToken, 0, len(tokenRecords))
	for _, tokenRecord := range tokenRecords {
		user.RefreshTokens = append(user.RefreshTokens, RefreshToken{
			Token:     tokenRecord.Token,
			CreatedAt: time.Unix(tokenRecord.CreatedAtUnix, 0).UTC(),
		})
	}
	return user, nil
}

func (store *databaseUserStore) lookupError(operation string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user_store.%s.%s: %w", operation, store.driverLabel, ErrNotFound)
	}
	return fmt.Errorf("user_store.%s.%s: %w", operation, store.driverLabel, err)
}

func userRecordFrom(user *User) userRecord {
	record := userRecord{
		ID:            user.ID,
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		CreatedAtUnix: user.CreatedAt.UTC().Unix(),
		UpdatedAtUnix: user.UpdatedAt.UTC().Unix(),
	}
	if user.Username != "" {
		username := user.Username
		record.Username = &username
	}
	return record
}

func userFrom(record *userRecord) *User {
	user := &User{
		ID:           record.ID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		CreatedAt:    time.Unix(record.CreatedAtUnix, 0).UTC(),
		UpdatedAt:    time.Unix(record.UpdatedAtUnix, 0).UTC(),
	}
	if record.Username != nil {
		user.Username = *record.Username
	}
	return user
}
