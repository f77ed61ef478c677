package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mkhomutov/feedkeeper/internal/database/imports"
	"github.com/mkhomutov/feedkeeper/internal/database/subscriptions"
	"github.com/mkhomutov/feedkeeper/internal/entities"
	"github.com/mkhomutov/feedkeeper/internal/importer"
	"github.com/mkhomutov/feedkeeper/internal/jobs"
)

const sampleOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Tech" title="Tech">
      <outline type="rss" text="Tech Feed" title="Tech Feed" xmlUrl="https://tech.example.com/rss"/>
    </outline>
    <outline type="rss" text="Solo Feed" title="Solo Feed" xmlUrl="https://solo.example.com/feed"/>
  </body>
</opml>`

type noopEnqueuer struct {
	jobIDs []string
}

func (e *noopEnqueuer) EnqueueImport(jobID string, _ []byte) error {
	e.jobIDs = append(e.jobIDs, jobID)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	registry *jobs.Registry
	enqueuer *noopEnqueuer
}

func setupEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&entities.ImportJob{},
		&entities.ImportResult{},
		&entities.Category{},
		&entities.Feed{},
	))

	subsRepo := subscriptions.NewRepository(db)
	enq := &noopEnqueuer{}
	registry := jobs.NewRegistry(imports.NewRepository(db), subsRepo, nil, enq, nil, importer.Config{})

	router := NewRouter(RouterConfig{
		Registry:      registry,
		Subscriptions: subsRepo,
		Version:       "test",
	})
	return &testEnv{router: router, registry: registry, enqueuer: enq}
}

func uploadRequest(t *testing.T, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("opml_file", "subscriptions.opml")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func submit(t *testing.T, env *testEnv, content string, fields map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, uploadRequest(t, content, fields))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return rec, payload
}

func TestImports_CreateAcceptsUpload(t *testing.T) {
	env := setupEnv(t)

	rec, payload := submit(t, env, sampleOPML, map[string]string{"validate_feeds": "false"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "pending", payload["status"])
	assert.Equal(t, "subscriptions.opml", payload["filename"])
	assert.NotEmpty(t, payload["id"])
	assert.Equal(t, float64(0), payload["progress_percentage"])
	require.Len(t, env.enqueuer.jobIDs, 1)
	assert.Equal(t, payload["id"], env.enqueuer.jobIDs[0])
}

func TestImports_CreateWithoutFile(t *testing.T) {
	env := setupEnv(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/imports", nil)
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImports_CreateRejectsMergeStrategy(t *testing.T) {
	env := setupEnv(t)

	rec, payload := submit(t, env, sampleOPML, map[string]string{"duplicate_strategy": "merge"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, payload["error"], "unsupported duplicate strategy")
	assert.Empty(t, env.enqueuer.jobIDs)
}

func TestImports_GetUnknownJob(t *testing.T) {
	env := setupEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImports_FullLifecycleThroughAPI(t *testing.T) {
	env := setupEnv(t)

	rec, payload := submit(t, env, sampleOPML, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := payload["id"].(string)

	// The queue is stubbed out in tests; run the worker side directly.
	require.NoError(t, env.registry.Execute(context.Background(), jobID, []byte(sampleOPML)))

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "completed", detail["status"])
	assert.Equal(t, float64(100), detail["progress_percentage"])
	assert.Equal(t, float64(1), detail["categories_created"])
	assert.Equal(t, float64(2), detail["feeds_imported"])
	assert.Len(t, detail["results"], 3)

	// The imported subscriptions are visible on the read API.
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var subs SubscriptionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs.Categories, 1)
	assert.Equal(t, "Tech", subs.Categories[0].Path)
	assert.Len(t, subs.Feeds, 2)
}

func TestImports_ListScopedToUser(t *testing.T) {
	env := setupEnv(t)

	_, payload := submit(t, env, sampleOPML, nil)
	require.NotEmpty(t, payload["id"])

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list map[string][]ImportJobView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list["imports"], 1)
}

func TestImports_CancelTransitions(t *testing.T) {
	env := setupEnv(t)

	_, payload := submit(t, env, sampleOPML, nil)
	jobID := payload["id"].(string)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/imports/"+jobID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cancelled map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, "cancelled", cancelled["status"])

	// A second cancel hits a job that is already terminal.
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/imports/"+jobID+"/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestImports_DeleteRequiresTerminalJob(t *testing.T) {
	env := setupEnv(t)

	_, payload := submit(t, env, sampleOPML, nil)
	jobID := payload["id"].(string)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/imports/"+jobID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, env.registry.Execute(context.Background(), jobID, []byte(sampleOPML)))

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/imports/"+jobID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/"+jobID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
