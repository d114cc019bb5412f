package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"lowcode-backend/internal/metadata"
	"lowcode-backend/internal/store"
)

// Handler executes CRUD operations for any model definition. Every
// operation runs on a single pooled connection that is released before
// the handler returns.
type Handler struct {
	store *store.Store
	now   func() time.Time
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s, now: time.Now}
}

// List handles GET /api/:model
func (h *Handler) List(c *fiber.Ctx, def *metadata.ModelDefinition) error {
	conn, err := h.store.Acquire(c.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	rows, err := store.QueryRows(c.Context(), conn, BuildListSQL(h.store.Dialect, def))
	if err != nil {
		return fmt.Errorf("list %s: %w", def.Name, err)
	}
	normalizeRows(h.store.Dialect, def, rows)
	return c.JSON(rows)
}

// GetByID handles GET /api/:model/:id
func (h *Handler) GetByID(c *fiber.Ctx, def *metadata.ModelDefinition) error {
	conn, err := h.store.Acquire(c.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	id := c.Params("id")
	row, err := h.fetchRecord(c.Context(), conn, def, id)
	if err != nil {
		return err
	}
	return c.JSON(row)
}

// Create handles POST /api/:model
func (h *Handler) Create(c *fiber.Ctx, def *metadata.ModelDefinition) error {
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	values, verrs := PlanWrite(def, body, true)
	if len(verrs) > 0 {
		return ValidationError(verrs)
	}

	user := getIdentity(c)
	if def.OwnerField != "" && user != nil {
		owner, ok := values[def.OwnerField]
		switch {
		case !ok || owner == nil:
			values[def.OwnerField] = user.UserID
		case !user.IsAdmin() && owner != user.UserID:
			return NotOwnerError()
		}
	}

	if _, ok := values[metadata.ColumnID]; !ok {
		values[metadata.ColumnID] = uuid.NewString()
	}
	id := values[metadata.ColumnID].(string)
	now := h.now()
	values[metadata.ColumnCreatedAt] = now
	values[metadata.ColumnUpdatedAt] = now
	bindValues(h.store.Dialect, values)

	conn, err := h.store.Acquire(c.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	sqlStr, params := BuildInsertSQL(h.store.Dialect, def, values)
	if _, err := store.Exec(c.Context(), conn, sqlStr, params...); err != nil {
		return writeError(h.store.Dialect, fmt.Errorf("insert %s: %w", def.Name, err))
	}

	row, err := h.fetchRecord(c.Context(), conn, def, id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(row)
}

// Update handles PUT and PATCH /api/:model/:id
func (h *Handler) Update(c *fiber.Ctx, def *metadata.ModelDefinition) error {
	body, err := parseBody(c)
	if err != nil {
		return err
	}
	values, verrs := PlanWrite(def, body, false)
	if len(verrs) > 0 {
		return ValidationError(verrs)
	}

	conn, err := h.store.Acquire(c.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	id := c.Params("id")
	current, err := h.fetchRecord(c.Context(), conn, def, id)
	if err != nil {
		return err
	}

	user := getIdentity(c)
	if err := checkOwner(def, user, current); err != nil {
		return err
	}
	if def.OwnerField != "" && !user.IsAdmin() {
		if owner, ok := values[def.OwnerField]; ok && (user == nil || owner != user.UserID) {
			return NotOwnerError()
		}
	}

	values[metadata.ColumnUpdatedAt] = h.now()
	bindValues(h.store.Dialect, values)

	sqlStr, params := BuildUpdateSQL(h.store.Dialect, def, id, values)
	if _, err := store.Exec(c.Context(), conn, sqlStr, params...); err != nil {
		return writeError(h.store.Dialect, fmt.Errorf("update %s/%s: %w", def.Name, id, err))
	}

	row, err := h.fetchRecord(c.Context(), conn, def, id)
	if err != nil {
		return err
	}
	return c.JSON(row)
}

// Delete handles DELETE /api/:model/:id
func (h *Handler) Delete(c *fiber.Ctx, def *metadata.ModelDefinition) error {
	conn, err := h.store.Acquire(c.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	id := c.Params("id")
	current, err := h.fetchRecord(c.Context(), conn, def, id)
	if err != nil {
		return err
	}
	if err := checkOwner(def, getIdentity(c), current); err != nil {
		return err
	}

	sqlStr, params := BuildDeleteSQL(h.store.Dialect, def, id)
	affected, err := store.Exec(c.Context(), conn, sqlStr, params...)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", def.Name, id, err)
	}
	if affected == 0 {
		return NotFoundError(def.Name, id)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handler) fetchRecord(ctx context.Context, conn *sql.Conn, def *metadata.ModelDefinition, id string) (map[string]any, error) {
	sqlStr, params := BuildSelectByIDSQL(h.store.Dialect, def, id)
	row, err := store.QueryRow(ctx, conn, sqlStr, params...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(def.Name, id)
		}
		return nil, fmt.Errorf("fetch %s/%s: %w", def.Name, id, err)
	}
	normalizeRows(h.store.Dialect, def, []map[string]any{row})
	return row, nil
}

// checkOwner allows Admin and the identity named by the record's owner
// field. Models without an owner field are not restricted.
func checkOwner(def *metadata.ModelDefinition, user *metadata.Identity, record map[string]any) error {
	if def.OwnerField == "" || user.IsAdmin() {
		return nil
	}
	if user == nil {
		return NotOwnerError()
	}
	if owner, ok := record[def.OwnerField].(string); !ok || owner != user.UserID {
		return NotOwnerError()
	}
	return nil
}

func parseBody(c *fiber.Ctx) (map[string]any, error) {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	if body == nil {
		return nil, InvalidPayloadError("Request body must be a JSON object")
	}
	return body, nil
}

func getIdentity(c *fiber.Ctx) *metadata.Identity {
	user, _ := c.Locals(metadata.IdentityLocalsKey).(*metadata.Identity)
	return user
}

func writeError(d store.Dialect, err error) error {
	if errors.Is(store.MapError(d, err), store.ErrUniqueViolation) {
		return ConflictError("A record with this value already exists")
	}
	return err
}
