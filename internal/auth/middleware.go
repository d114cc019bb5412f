package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"lowcode-backend/internal/engine"
	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/metadata"
)

// TokenMiddleware attaches the identity from an "Authorization: Bearer"
// header when the session layer resolved none. Missing or invalid tokens
// leave the request anonymous.
func TokenMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetIdentity(c) != nil {
			return c.Next()
		}
		header := c.Get("Authorization")
		if header == "" {
			return c.Next()
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Next()
		}

		id, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			logging.Debugf("ignoring bearer token: %v", err)
			return c.Next()
		}
		SetIdentity(c, id)
		return c.Next()
	}
}

// RequireIdentity rejects anonymous requests.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetIdentity(c) == nil {
			return engine.UnauthorizedError("Authentication required")
		}
		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated user has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := GetIdentity(c)
		if id == nil {
			return engine.UnauthorizedError("Authentication required")
		}
		if !id.IsAdmin() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// GetIdentity extracts the acting identity from a Fiber context.
func GetIdentity(c *fiber.Ctx) *metadata.Identity {
	id, _ := c.Locals(metadata.IdentityLocalsKey).(*metadata.Identity)
	return id
}

func SetIdentity(c *fiber.Ctx, id *metadata.Identity) {
	c.Locals(metadata.IdentityLocalsKey, id)
}

// Authenticate is the first route guard: an identity must be present.
func Authenticate(c *fiber.Ctx, _ string) error {
	if GetIdentity(c) == nil {
		return engine.UnauthorizedError("Authentication required")
	}
	return nil
}

// OperationForMethod maps an HTTP verb onto the CRUD operation it performs.
// Unrecognised verbs count as reads.
func OperationForMethod(method string) metadata.Operation {
	switch method {
	case fiber.MethodPost:
		return metadata.OpCreate
	case fiber.MethodPut, fiber.MethodPatch:
		return metadata.OpUpdate
	case fiber.MethodDelete:
		return metadata.OpDelete
	default:
		return metadata.OpRead
	}
}

// DefinitionReader loads a model definition from the catalog.
type DefinitionReader interface {
	Read(name string) (*metadata.ModelDefinition, error)
}

// Authorizer checks the request's role against the model's rbac map. The
// definition is read on every call so policy edits apply to the next
// request.
type Authorizer struct {
	defs DefinitionReader
}

func NewAuthorizer(defs DefinitionReader) *Authorizer {
	return &Authorizer{defs: defs}
}

// Authorize is the second route guard.
func (a *Authorizer) Authorize(c *fiber.Ctx, model string) error {
	def, err := a.defs.Read(model)
	if errors.Is(err, metadata.ErrDefinitionNotFound) {
		return engine.ModelNotFoundError()
	}
	if err != nil {
		return err
	}

	role := GetIdentity(c).RoleOrDefault()
	op := OperationForMethod(c.Method())
	if !def.Permits(role, op) {
		logging.Debugf("rbac: role %s denied %s on %s", role, op, model)
		return engine.ForbiddenError("Forbidden by RBAC")
	}
	return nil
}

// Guards returns the route guards in the order they run.
func (a *Authorizer) Guards() []engine.Guard {
	return []engine.Guard{Authenticate, a.Authorize}
}
