package subscriptions

import (
	"gorm.io/gorm"

	"github.com/mkhomutov/feedkeeper/internal/entities"
)

// Repository persists categories and feed subscriptions.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CategoriesByUser returns every category the user owns.
func (r *Repository) CategoriesByUser(userID uint) ([]entities.Category, error) {
	var categories []entities.Category
	err := r.db.Where("user_id = ?", userID).Order("id").Find(&categories).Error
	return categories, err
}

// FeedsByUser returns every feed subscription the user owns.
func (r *Repository) FeedsByUser(userID uint) ([]entities.Feed, error) {
	var feeds []entities.Feed
	err := r.db.Where("user_id = ?", userID).Order("id").Find(&feeds).Error
	return feeds, err
}

// CreateCategory persists one category in its own transaction.
func (r *Repository) CreateCategory(category *entities.Category) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(category).Error
	})
}

// CreateFeed persists one feed subscription in its own transaction.
func (r *Repository) CreateFeed(feed *entities.Feed) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(feed).Error
	})
}

// GetCategory fetches a category by id, scoped to the user.
func (r *Repository) GetCategory(userID, id uint) (*entities.Category, error) {
	var category entities.Category
	err := r.db.Where("user_id = ?", userID).First(&category, id).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// CategoryPaths resolves the full path of every category of the user by
// walking ParentID chains, keyed by category id. A category whose parent
// chain is broken resolves to just its own name.
func (r *Repository) CategoryPaths(userID uint) (map[uint][]string, error) {
	categories, err := r.CategoriesByUser(userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*entities.Category, len(categories))
	for i := range categories {
		byID[categories[i].ID] = &categories[i]
	}

	paths := make(map[uint][]string, len(categories))
	for i := range categories {
		paths[categories[i].ID] = buildPath(&categories[i], byID)
	}
	return paths, nil
}

func buildPath(cat *entities.Category, byID map[uint]*entities.Category) []string {
	var reversed []string
	seen := make(map[uint]bool)
	for current := cat; current != nil; {
		if seen[current.ID] {
			break // parent cycle in stored data
		}
		seen[current.ID] = true
		reversed = append(reversed, current.Name)
		if current.ParentID == nil {
			break
		}
		current = byID[*current.ParentID]
	}

	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}
