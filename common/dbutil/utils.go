package dbutil

import (
	"github.com/astranetix/bms/common/errors"
	"gorm.io/gorm"
)

func FindOne[T any](db *gorm.DB) (*T, error) {
	var item T
	result := db.Limit(1).Find(&item)
	if result.Error != nil {
		return nil, WrapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.NotFound
	}
	return &item, nil
}

// FindExisting is FindOne with a caller-facing "<what> not found" message.
func FindExisting[T any](db *gorm.DB, what string) (*T, error) {
	item, err := FindOne[T](db)
	if errors.Is(err, errors.NotFound) {
		return nil, errors.NotFound.Explain("%s not found", what)
	}
	return item, err
}

// Paginate clamps page/limit the way list endpoints expect and applies them.
func Paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	page, limit = NormalizePage(page, limit)
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

// NormalizePage defaults page to 1 and limit to 20, capping limit at 100.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
