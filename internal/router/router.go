package router

import (
	"github.com/blinkportal/backend/internal/handler"
	"github.com/blinkportal/backend/internal/middleware"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Deps struct {
	DB                 *gorm.DB
	JWTSecret          string
	CORSOrigins        []string
	AuthHandler        *handler.AuthHandler
	UserHandler        *handler.UserHandler
	ProjectHandler     *handler.ProjectHandler
	DocumentHandler    *handler.DocumentHandler
	BookingHandler     *handler.BookingHandler
	RequestHandler     *handler.RequestHandler
	DashboardHandler   *handler.DashboardHandler
	IntegrationHandler *handler.IntegrationHandler
	HealthHandler      *handler.HealthHandler
}

func Setup(r *gin.Engine, deps Deps) {
	r.Use(
		middleware.RequestID(),
		middleware.Recoverer(),
		middleware.Logger(),
		middleware.Tracing(),
		middleware.CORSMiddleware(deps.CORSOrigins),
	)

	r.GET("/health", deps.HealthHandler.Health)

	api := r.Group("/api/v1")
	api.GET("/health", deps.HealthHandler.Health)

	// Public routes (no auth)
	auth := api.Group("/auth")
	{
		auth.POST("/login", deps.AuthHandler.Login)
		auth.POST("/refresh", deps.AuthHandler.Refresh)
	}
	api.GET("/integrations/google/callback", deps.IntegrationHandler.GoogleCallback)

	// Authenticated routes
	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(deps.JWTSecret, deps.DB))
	{
		authed.GET("/auth/me", deps.AuthHandler.GetMe)

		// Admin routes
		admin := authed.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/users", deps.UserHandler.CreateUser)
			admin.GET("/users", deps.UserHandler.ListUsers)
			admin.PUT("/users/:id/status", deps.UserHandler.UpdateUserStatus)
			admin.PUT("/users/:id/role", deps.UserHandler.UpdateUserRole)
			admin.DELETE("/users/:id", deps.UserHandler.DeleteUser)
			admin.GET("/operation-logs", deps.DashboardHandler.GetOperationLogs)
			admin.GET("/integrations/google/login", deps.IntegrationHandler.GoogleLogin)
			admin.GET("/integrations/google/status", deps.IntegrationHandler.GoogleStatus)
		}

		projects := authed.Group("/projects")
		{
			projects.POST("", deps.ProjectHandler.Create)
			projects.GET("", deps.ProjectHandler.List)
			projects.GET("/:id", deps.ProjectHandler.GetDetail)
			projects.PUT("/:id", deps.ProjectHandler.Update)
			projects.DELETE("/:id", deps.ProjectHandler.Delete)
			projects.POST("/:id/members", deps.ProjectHandler.AddMembers)
			projects.DELETE("/:id/members/:user_id", deps.ProjectHandler.RemoveMember)
		}

		recordings := authed.Group("/recordings")
		{
			recordings.POST("", deps.DocumentHandler.CreateRecording)
			recordings.GET("", deps.DocumentHandler.ListRecordings)
			recordings.GET("/:id", deps.DocumentHandler.GetRecording)
			recordings.PUT("/:id", deps.DocumentHandler.UpdateRecording)
			recordings.DELETE("/:id", deps.DocumentHandler.DeleteRecording)
			recordings.GET("/:id/download-url", deps.DocumentHandler.RecordingDownloadURL)
		}

		files := authed.Group("/files")
		{
			files.POST("", deps.DocumentHandler.CreateFile)
			files.GET("", deps.DocumentHandler.ListFiles)
			files.GET("/:id", deps.DocumentHandler.GetFile)
			files.PUT("/:id", deps.DocumentHandler.UpdateFile)
			files.DELETE("/:id", deps.DocumentHandler.DeleteFile)
			files.GET("/:id/download-url", deps.DocumentHandler.FileDownloadURL)
		}

		bookings := authed.Group("/bookings")
		{
			bookings.POST("/slots", deps.BookingHandler.CreateSlot)
			bookings.GET("/slots", deps.BookingHandler.ListSlots)
			bookings.DELETE("/slots/:id", deps.BookingHandler.DeleteSlot)

			bookings.POST("", deps.BookingHandler.Create)
			bookings.GET("", deps.BookingHandler.List)
			bookings.GET("/:id", deps.BookingHandler.Get)
			bookings.PUT("/:id", deps.BookingHandler.Update)
			bookings.DELETE("/:id", deps.BookingHandler.Cancel)
		}

		requests := authed.Group("/requests")
		{
			requests.POST("", deps.RequestHandler.Create)
			requests.GET("", deps.RequestHandler.List)
			requests.GET("/:id", deps.RequestHandler.Get)
			requests.PUT("/:id", deps.RequestHandler.Update)
			requests.DELETE("/:id", deps.RequestHandler.Delete)
			requests.POST("/:id/messages", deps.RequestHandler.AddMessage)
			requests.GET("/:id/messages", deps.RequestHandler.ListMessages)
		}

		dashboard := authed.Group("/dashboard")
		{
			dashboard.GET("/stats", deps.DashboardHandler.GetStats)
		}
	}
}
