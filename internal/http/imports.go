package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mkhomutov/feedkeeper/internal/entities"
	"github.com/mkhomutov/feedkeeper/internal/jobs"
)

// ImportJobView decorates a job with its derived progress for API output.
type ImportJobView struct {
	*entities.ImportJob
	ProgressPercentage float64 `json:"progress_percentage"`
}

func jobView(job *entities.ImportJob) ImportJobView {
	return ImportJobView{ImportJob: job, ProgressPercentage: job.ProgressPercentage()}
}

// ImportDetailResponse is the single-job payload including per-item results.
type ImportDetailResponse struct {
	ImportJobView
	Results []entities.ImportResult `json:"results"`
}

// ImportsController handles subscription list import submissions and the
// lifecycle endpoints around them.
type ImportsController struct {
	registry       *jobs.Registry
	maxUploadBytes int64
}

func NewImportsController(registry *jobs.Registry, maxUploadBytes int64) *ImportsController {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &ImportsController{
		registry:       registry,
		maxUploadBytes: maxUploadBytes,
	}
}

// Create handles POST /api/imports. The job is accepted and queued; the
// response returns immediately with the pending job.
func (ic *ImportsController) Create(c *gin.Context) {
	file, header, err := c.Request.FormFile("opml_file")
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": "subscription list file not provided"})
		return
	}
	defer file.Close()

	if header.Size > ic.maxUploadBytes {
		c.IndentedJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file too large (max %d MB)", ic.maxUploadBytes/(1024*1024)),
		})
		return
	}

	document, err := io.ReadAll(io.LimitReader(file, ic.maxUploadBytes+1))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	if int64(len(document)) > ic.maxUploadBytes {
		c.IndentedJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file too large (max %d MB)", ic.maxUploadBytes/(1024*1024)),
		})
		return
	}

	opts := jobs.Options{
		DuplicateStrategy: entities.DuplicateStrategy(c.PostForm("duplicate_strategy")),
	}
	if v := c.PostForm("validate_feeds"); v != "" {
		validate, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			c.IndentedJSON(http.StatusBadRequest, gin.H{"error": "validate_feeds must be a boolean"})
			return
		}
		opts.ValidateFeeds = validate
	}
	if v := c.PostForm("category_parent_id"); v != "" {
		parentID, parseErr := strconv.ParseUint(v, 10, 32)
		if parseErr != nil {
			c.IndentedJSON(http.StatusBadRequest, gin.H{"error": "category_parent_id must be a positive integer"})
			return
		}
		id := uint(parentID)
		opts.CategoryParentID = &id
	}

	job, err := ic.registry.Create(userIDFromContext(c), header.Filename, document, opts)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrEmptyDocument), errors.Is(err, jobs.ErrUnsupportedStrategy):
			c.IndentedJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.IndentedJSON(http.StatusAccepted, jobView(job))
}

// List handles GET /api/imports.
func (ic *ImportsController) List(c *gin.Context) {
	list, err := ic.registry.List(userIDFromContext(c))
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]ImportJobView, 0, len(list))
	for i := range list {
		views = append(views, jobView(&list[i]))
	}
	c.IndentedJSON(http.StatusOK, gin.H{"imports": views})
}

// Get handles GET /api/imports/:id.
func (ic *ImportsController) Get(c *gin.Context) {
	job, err := ic.registry.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.IndentedJSON(http.StatusNotFound, gin.H{"error": "import job not found"})
			return
		}
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results, err := ic.registry.Results(job.ID)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.IndentedJSON(http.StatusOK, ImportDetailResponse{
		ImportJobView: jobView(job),
		Results:       results,
	})
}

// Cancel handles POST /api/imports/:id/cancel. A pending job ends
// immediately; a running one stops at its next phase boundary.
func (ic *ImportsController) Cancel(c *gin.Context) {
	err := ic.registry.Cancel(c.Param("id"))
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrJobNotFound):
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "import job not found"})
		return
	case errors.Is(err, jobs.ErrAlreadyTerminal):
		c.IndentedJSON(http.StatusConflict, gin.H{"error": "import job already finished"})
		return
	default:
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	job, err := ic.registry.Get(c.Param("id"))
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, jobView(job))
}

// Delete handles DELETE /api/imports/:id. Only finished jobs can go.
func (ic *ImportsController) Delete(c *gin.Context) {
	err := ic.registry.Delete(c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, jobs.ErrJobNotFound):
		c.IndentedJSON(http.StatusNotFound, gin.H{"error": "import job not found"})
	case errors.Is(err, jobs.ErrJobActive):
		c.IndentedJSON(http.StatusConflict, gin.H{"error": "import job is still active"})
	default:
		c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
