package admin

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"lowcode-backend/internal/engine"
	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/metadata"
	"lowcode-backend/internal/publish"
)

// DDLPreviewer renders the CREATE TABLE statement for a definition.
type DDLPreviewer interface {
	TableDDL(def *metadata.ModelDefinition) string
}

type Handler struct {
	catalog   *metadata.Catalog
	registrar *engine.Registrar
	ddl       DDLPreviewer
	publisher *publish.Publisher
}

func NewHandler(catalog *metadata.Catalog, registrar *engine.Registrar, ddl DDLPreviewer, publisher *publish.Publisher) *Handler {
	return &Handler{catalog: catalog, registrar: registrar, ddl: ddl, publisher: publisher}
}

// RegisterAdminRoutes mounts the model admin endpoints. guards run before
// every endpoint.
func RegisterAdminRoutes(app fiber.Router, h *Handler, guards ...fiber.Handler) {
	models := app.Group("/admin/models", guards...)

	models.Post("/publish", h.Publish)
	models.Get("/list", h.List)
	models.Get("/:name/schema", h.Schema)
	models.Get("/:name", h.Get)
}

// Publish validates the body, writes the definition file, creates the table,
// mounts the routes and finally runs the external publish hook.
func (h *Handler) Publish(c *fiber.Ctx) error {
	var def metadata.ModelDefinition
	if err := c.BodyParser(&def); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	if strings.TrimSpace(def.Name) == "" {
		return engine.InvalidPayloadError("Missing model name")
	}
	if err := def.Validate(); err != nil {
		return definitionError(err)
	}

	if err := h.catalog.Write(&def); err != nil {
		return err
	}

	done, changed := h.registrar.Register(&def)
	if err := <-done; err != nil {
		return engine.NewAppError("SCHEMA_SYNC_FAILED", fiber.StatusInternalServerError,
			"Model saved but its table could not be created: "+err.Error())
	}

	if err := h.publisher.Publish(c.Context(), &def); err != nil {
		return engine.NewAppError("PUBLISH_FAILED", fiber.StatusInternalServerError, err.Error())
	}

	logging.Infof("published model %s (changed=%v)", def.Name, changed)
	return c.JSON(fiber.Map{"ok": true, "model": def.Name})
}

// List returns every definition currently on disk.
func (h *Handler) List(c *fiber.Ctx) error {
	defs, err := h.catalog.List()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"models": defs})
}

func (h *Handler) Get(c *fiber.Ctx) error {
	def, err := h.read(c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(def)
}

// Schema previews the table DDL and the publish schema block for a model.
func (h *Handler) Schema(c *fiber.Ctx) error {
	def, err := h.read(c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"ddl":   h.ddl.TableDDL(def),
		"block": publish.SchemaBlock(def),
	})
}

func (h *Handler) read(name string) (*metadata.ModelDefinition, error) {
	def, err := h.catalog.Read(name)
	if errors.Is(err, metadata.ErrDefinitionNotFound) {
		return nil, engine.ModelNotFoundError()
	}
	return def, err
}

func definitionError(err error) error {
	var defErr *metadata.DefinitionError
	if !errors.As(err, &defErr) {
		return err
	}
	details := make([]engine.ErrorDetail, 0, len(defErr.Problems))
	for _, p := range defErr.Problems {
		details = append(details, engine.ErrorDetail{Message: p})
	}
	return engine.ValidationError(details)
}
