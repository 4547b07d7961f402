package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auction-house/internal/api/dto"
	"github.com/spec-kit/auction-house/internal/auth"
	"github.com/spec-kit/auction-house/internal/service"
	apperrors "github.com/spec-kit/auction-house/pkg/util/errorutil"
)

// UsersHandler exposes administrative user endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users *service.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// List handles GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	users, err := h.users.ListUsers(c.UserContext(), claims)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"data": users})
}

// Search handles GET /api/users/search?query=.
func (h *UsersHandler) Search(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	users, err := h.users.SearchUsers(c.UserContext(), claims, c.Query("query"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"data": users})
}

// ChangeRole handles PUT /api/users/:id/role.
func (h *UsersHandler) ChangeRole(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.RoleChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.users.ChangeRole(c.UserContext(), claims, c.Params("id"), req.Role)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"data": user})
}
