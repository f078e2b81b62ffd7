package services

import (
	"context"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

type CategoryService struct {
	store *storage.SQLiteRepository
}

func NewCategoryService(store *storage.SQLiteRepository) *CategoryService {
	return &CategoryService{store: store}
}

// Create adds a custom category alongside the seeded defaults. Names are
// validated but not deduplicated; two "Food" buckets are the user's choice.
func (s *CategoryService) Create(ctx context.Context, userID int64, name string) (core.Category, error) {
	c := core.Category{UserID: userID, Name: name}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return s.store.CreateCategory(ctx, userID, name)
}

func (s *CategoryService) List(ctx context.Context, userID int64) ([]core.Category, error) {
	return s.store.ListCategories(ctx, userID)
}
