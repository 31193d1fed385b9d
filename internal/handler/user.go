package handler

import (
	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	authService *service.AuthService
}

func NewUserHandler(authService *service.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// POST /admin/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req struct {
		Email    string     `json:"email" binding:"required,email"`
		Password string     `json:"password" binding:"required"`
		FullName string     `json:"full_name" binding:"max=128"`
		Role     model.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	user, err := h.authService.CreateUser(c.Request.Context(), middleware.GetActor(c), service.UserInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, userView(user))
}

// GET /admin/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	pg, page, pageSize := pageOf(c)
	f := service.UserFilter{
		Keyword: c.Query("keyword"),
		Role:    model.Role(c.Query("role")),
		Page:    pg,
	}
	if s := c.Query("is_active"); s != "" {
		v := queryBool(c, "is_active", true)
		f.Active = &v
	}
	users, total, err := h.authService.ListUsers(c.Request.Context(), middleware.GetActor(c), f)
	if err != nil {
		Fail(c, err)
		return
	}
	list := make([]gin.H, 0, len(users))
	for i := range users {
		list = append(list, userView(&users[i]))
	}
	SuccessPaged(c, list, total, page, pageSize)
}

// PUT /admin/users/:id/status
func (h *UserHandler) UpdateUserStatus(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	user, err := h.authService.SetActive(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), *req.IsActive)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, userView(user))
}

// PUT /admin/users/:id/role
func (h *UserHandler) UpdateUserRole(c *gin.Context) {
	var req struct {
		Role model.Role `json:"role" binding:"required,oneof=admin client"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	user, err := h.authService.SetRole(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), req.Role)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, userView(user))
}

// DELETE /admin/users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.authService.DeleteUser(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id"))); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
