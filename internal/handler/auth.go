package handler

import (
	"net/http"
	"strings"

	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password" binding:"required"`
}

// POST /auth/login
// Accepts JSON or a form post. The form field "username" carries the email.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	var err error
	if strings.HasPrefix(c.ContentType(), binding.MIMEJSON) {
		err = c.ShouldBindJSON(&req)
	} else {
		err = c.ShouldBind(&req)
	}
	if err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	email := req.Email
	if email == "" {
		email = req.Username
	}
	if email == "" {
		BadRequest(c, 40001, "email is required")
		return
	}

	user, pair, err := h.authService.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{
		"access_token":       pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"token_type":         pair.TokenType,
		"expires_at":         pair.ExpiresAt,
		"refresh_expires_at": pair.RefreshExpiresAt,
		"user":               userView(user),
	})
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, pair)
}

// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		Error(c, http.StatusUnauthorized, 40103, "not authenticated")
		return
	}
	Success(c, userView(user))
}

func userView(u *model.User) gin.H {
	return gin.H{
		"id":            u.ID,
		"email":         u.Email,
		"full_name":     u.FullName,
		"role":          u.Role,
		"is_active":     u.IsActive,
		"last_login_at": u.LastLoginAt,
		"created_at":    u.CreatedAt,
		"updated_at":    u.UpdatedAt,
	}
}
