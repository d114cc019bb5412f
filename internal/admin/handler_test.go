package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowcode-backend/internal/auth"
	"lowcode-backend/internal/config"
	"lowcode-backend/internal/engine"
	"lowcode-backend/internal/metadata"
	"lowcode-backend/internal/publish"
	"lowcode-backend/internal/session"
	"lowcode-backend/internal/store"
)

type adminEnv struct {
	app        *fiber.App
	catalog    *metadata.Catalog
	schemaFile string
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	s, err := store.New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "admin"})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	schemaFile := filepath.Join(t.TempDir(), "schema.prisma")
	require.NoError(t, os.WriteFile(schemaFile, []byte("// generated models\n"), 0o644))

	catalog := metadata.NewCatalog(t.TempDir())
	migrator := store.NewMigrator(s)
	authz := auth.NewAuthorizer(catalog)
	routes := engine.NewRouteTable(engine.NewHandler(s), authz.Guards()...)
	registrar := engine.NewRegistrar(metadata.NewRegistry(), routes, migrator)
	sessions := session.NewManager(session.NewMemoryStore(time.Hour), session.Options{Secret: "s", MaxAge: time.Hour}, nil)

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	app.Use(sessions.Middleware())
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(sessions, "", 0, ""))
	RegisterAdminRoutes(app, NewHandler(catalog, registrar, migrator, publish.New(schemaFile, "", time.Minute)), auth.RequireAdmin())
	engine.RegisterDynamicRoutes(app, "/api", routes)

	return &adminEnv{app: app, catalog: catalog, schemaFile: schemaFile}
}

func (e *adminEnv) do(t *testing.T, method, path string, cookie *http.Cookie, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func (e *adminEnv) login(t *testing.T, role string) *http.Cookie {
	t.Helper()
	req, _ := http.NewRequest("POST", "/admin/login", strings.NewReader(`{"userId":"u-`+role+`","role":"`+role+`"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	for _, ck := range resp.Cookies() {
		if ck.Name == "sid" {
			return ck
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func errorBody(t *testing.T, data []byte) *engine.AppError {
	t.Helper()
	var resp engine.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &resp), string(data))
	require.NotNil(t, resp.Error, string(data))
	return resp.Error
}

func modelM() map[string]any {
	return map[string]any{
		"name":   "M",
		"fields": []map[string]any{{"name": "title", "type": "string", "required": true}},
		"rbac":   map[string][]string{"Admin": {"all"}},
	}
}

func TestPublish_ThenCRUD(t *testing.T) {
	env := newAdminEnv(t)
	admin := env.login(t, "Admin")

	status, body := env.do(t, "POST", "/admin/models/publish", admin, modelM())
	require.Equal(t, 200, status, string(body))

	status, body = env.do(t, "POST", "/api/M", admin, map[string]any{"title": "x"})
	require.Equal(t, 201, status, string(body))
	var created map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	id := created["id"].(string)

	status, body = env.do(t, "GET", "/api/M/"+id, admin, nil)
	require.Equal(t, 200, status, string(body))
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))

	keys := make([]string, 0, len(got))
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"createdAt", "id", "title", "updatedAt"}, keys)
	assert.Equal(t, "x", got["title"])
	assert.Equal(t, id, got["id"])

	_, err := os.Stat(filepath.Join(env.catalog.Dir(), "M.json"))
	assert.NoError(t, err, "definition file should be written")

	schema, _ := os.ReadFile(env.schemaFile)
	assert.Contains(t, string(schema), "model M {")
}

func TestPublish_Idempotent(t *testing.T) {
	env := newAdminEnv(t)
	admin := env.login(t, "Admin")

	for i := 0; i < 2; i++ {
		status, body := env.do(t, "POST", "/admin/models/publish", admin, modelM())
		require.Equal(t, 200, status, string(body))
	}
	status, _ := env.do(t, "POST", "/api/M", admin, map[string]any{"title": "x"})
	assert.Equal(t, 201, status)
}

func TestPublish_RequiresAdmin(t *testing.T) {
	env := newAdminEnv(t)

	status, body := env.do(t, "POST", "/admin/models/publish", nil, modelM())
	assert.Equal(t, 401, status)
	assert.Equal(t, "UNAUTHENTICATED", errorBody(t, body).Code)

	editor := env.login(t, "Editor")
	status, body = env.do(t, "POST", "/admin/models/publish", editor, modelM())
	assert.Equal(t, 403, status)
	assert.Equal(t, "FORBIDDEN", errorBody(t, body).Code)
}

func TestPublish_RejectsBadInput(t *testing.T) {
	env := newAdminEnv(t)
	admin := env.login(t, "Admin")

	status, body := env.do(t, "POST", "/admin/models/publish", admin, "{not json")
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", errorBody(t, body).Code)

	status, body = env.do(t, "POST", "/admin/models/publish", admin, map[string]any{"fields": []any{}})
	assert.Equal(t, 400, status)
	assert.Equal(t, "Missing model name", errorBody(t, body).Message)

	bad := map[string]any{
		"name":       "Bad",
		"fields":     []map[string]any{{"name": "id", "type": "string"}, {"name": "n", "type": "float"}},
		"ownerField": "owner",
	}
	status, body = env.do(t, "POST", "/admin/models/publish", admin, bad)
	assert.Equal(t, 422, status)
	appErr := errorBody(t, body)
	assert.Equal(t, "VALIDATION_FAILED", appErr.Code)
	assert.Len(t, appErr.Details, 3)

	_, err := os.Stat(filepath.Join(env.catalog.Dir(), "Bad.json"))
	assert.True(t, os.IsNotExist(err), "invalid definitions must not be written")
}

func TestList_And_Schema(t *testing.T) {
	env := newAdminEnv(t)
	admin := env.login(t, "Admin")

	second := modelM()
	second["name"] = "A"
	for _, def := range []map[string]any{modelM(), second} {
		status, body := env.do(t, "POST", "/admin/models/publish", admin, def)
		require.Equal(t, 200, status, string(body))
	}

	status, body := env.do(t, "GET", "/admin/models/list", admin, nil)
	require.Equal(t, 200, status)
	var list struct {
		Models []metadata.ModelDefinition `json:"models"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Models, 2)
	assert.Equal(t, "A", list.Models[0].Name)
	assert.Equal(t, "M", list.Models[1].Name)

	status, body = env.do(t, "GET", "/admin/models/M/schema", admin, nil)
	require.Equal(t, 200, status)
	var preview map[string]string
	require.NoError(t, json.Unmarshal(body, &preview))
	assert.Contains(t, preview["ddl"], "CREATE TABLE IF NOT EXISTS `M`")
	assert.Contains(t, preview["block"], "title String")

	status, body = env.do(t, "GET", "/admin/models/Nope", admin, nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, "MODEL_NOT_FOUND", errorBody(t, body).Code)
}
