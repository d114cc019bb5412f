package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"lowcode-backend/internal/engine"
	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/metadata"
	"lowcode-backend/internal/session"
)

// AuthHandler handles login and logout.
type AuthHandler struct {
	sessions     *session.Manager
	jwtSecret    string
	tokenTTL     time.Duration
	passwordHash string
}

// NewAuthHandler creates a new AuthHandler. When passwordHash is empty any
// userId/role pair may log in.
func NewAuthHandler(sessions *session.Manager, jwtSecret string, tokenTTL time.Duration, passwordHash string) *AuthHandler {
	return &AuthHandler{sessions: sessions, jwtSecret: jwtSecret, tokenTTL: tokenTTL, passwordHash: passwordHash}
}

// Login handles POST /admin/login. The session is stored before the
// response is written so the cookie is usable immediately.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		UserID   string `json:"userId"`
		Role     string `json:"role"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.UserID == "" || body.Role == "" {
		return engine.NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Provide userId and role")
	}
	if h.passwordHash != "" && !CheckPassword(body.Password, h.passwordHash) {
		return engine.UnauthorizedError("Invalid credentials")
	}

	id := &metadata.Identity{UserID: body.UserID, Role: body.Role}
	if err := h.sessions.Login(c, id); err != nil {
		logging.Errorf("login: save session for %s: %v", id.UserID, err)
		return engine.NewAppError("SESSION_ERROR", fiber.StatusInternalServerError, "Failed to save session")
	}

	resp := fiber.Map{"ok": true}
	if h.jwtSecret != "" {
		token, err := GenerateAccessToken(id, h.jwtSecret, h.tokenTTL)
		if err != nil {
			return err
		}
		resp["token"] = token
	}
	logging.Infof("login: %s as %s", id.UserID, id.Role)
	return c.JSON(resp)
}

// Logout handles POST /admin/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.sessions.Logout(c); err != nil {
		logging.Warnf("logout: %v", err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// RegisterAuthRoutes registers auth routes on the given router.
func RegisterAuthRoutes(app fiber.Router, h *AuthHandler) {
	admin := app.Group("/admin")
	admin.Post("/login", h.Login)
	admin.Post("/logout", h.Logout)
}
