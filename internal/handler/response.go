package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/blinkportal/backend/internal/logs"
	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Response helpers

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func SuccessPaged(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data": gin.H{
			"list":      list,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		},
	})
}

func Error(c *gin.Context, httpCode int, code int, message string) {
	c.JSON(httpCode, gin.H{
		"code":    code,
		"message": message,
		"data":    nil,
	})
}

func BadRequest(c *gin.Context, code int, message string) {
	Error(c, http.StatusBadRequest, code, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, 50001, message)
}

var statusByKind = []struct {
	kind   error
	status int
}{
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrPermissionDenied, http.StatusForbidden},
	{service.ErrInvalidState, http.StatusBadRequest},
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrConflict, http.StatusConflict},
	{service.ErrAdapter, http.StatusBadGateway},
	{service.ErrConfiguration, http.StatusServiceUnavailable},
	{service.ErrUnauthenticated, http.StatusUnauthorized},
}

// Fail writes the envelope for a service error. Errors that are not rejections
// are logged and reported as 500 without their detail.
func Fail(c *gin.Context, err error) {
	var se *service.Error
	if errors.As(err, &se) {
		for _, m := range statusByKind {
			if errors.Is(se, m.kind) {
				if m.status >= http.StatusInternalServerError {
					logs.Logger.WithFields(logrus.Fields{
						"reqid": middleware.GetRequestID(c),
						"code":  se.Code,
					}).WithError(err).Error("integration failure")
				}
				Error(c, m.status, se.Code, se.Message)
				return
			}
		}
	}
	_ = c.Error(err)
	logs.Logger.WithField("reqid", middleware.GetRequestID(c)).WithError(err).Error("unhandled error")
	InternalError(c, "internal server error")
}

func parseID(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 64)
	return uint(id)
}

func parsePage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func pageOf(c *gin.Context) (service.Page, int, int) {
	page, pageSize := parsePage(c)
	return service.Page{Page: page, PageSize: pageSize}, page, pageSize
}

// queryBool reads a boolean query parameter, returning def when absent or malformed.
func queryBool(c *gin.Context, key string, def bool) bool {
	v, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// formValue reads a multipart field, falling back to the query string.
func formValue(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}
