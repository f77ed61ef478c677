package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mkhomutov/feedkeeper/internal/database/subscriptions"
	"github.com/mkhomutov/feedkeeper/internal/entities"
)

// CategoryView is a category together with its full path from the root.
type CategoryView struct {
	entities.Category
	Path string `json:"path"`
}

// SubscriptionsResponse lists everything the user is subscribed to.
type SubscriptionsResponse struct {
	Categories []CategoryView  `json:"categories"`
	Feeds      []entities.Feed `json:"feeds"`
}

// SubscriptionsController serves read access to the subscription tree.
type SubscriptionsController struct {
	store *subscriptions.Repository
}

func NewSubscriptionsController(store *subscriptions.Repository) *SubscriptionsController {
	return &SubscriptionsController{store: store}
}

func (sc *SubscriptionsController) categoryViews(userID uint) ([]CategoryView, error) {
	categories, err := sc.store.CategoriesByUser(userID)
	if err != nil {
		return nil, err
	}
	paths, err := sc.store.CategoryPaths(userID)
	if err != nil {
		return nil, err
	}

	views := make([]CategoryView, 0, len(categories))
	for _, cat := range categories {
		views = append(views, CategoryView{
			Category: cat,
			Path:     strings.Join(paths[cat.ID], "/"),
		})
	}
	return views, nil
}

// List handles GET /api/subscriptions.
func (sc *SubscriptionsController) List(c *gin.Context) {
	userID := userIDFromContext(c)

	views, err := sc.categoryViews(userID)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	feeds, err := sc.store.FeedsByUser(userID)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.IndentedJSON(http.StatusOK, SubscriptionsResponse{
		Categories: views,
		Feeds:      feeds,
	})
}

// ListCategories handles GET /api/categories.
func (sc *SubscriptionsController) ListCategories(c *gin.Context) {
	views, err := sc.categoryViews(userIDFromContext(c))
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"categories": views})
}
