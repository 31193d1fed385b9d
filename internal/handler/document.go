package handler

import (
	"strconv"

	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
)

// DocumentHandler serves recordings and files. Both are multipart uploads
// stored in SharePoint with metadata rows in the database.
type DocumentHandler struct {
	docService *service.DocumentService
}

func NewDocumentHandler(docService *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

type documentUpdateRequest struct {
	Title           *string `json:"title" binding:"omitempty,max=255"`
	Name            *string `json:"name" binding:"omitempty,max=255"`
	Description     *string `json:"description"`
	DurationSeconds *int    `json:"duration_seconds" binding:"omitempty,min=0"`
}

// readUpload opens the multipart "file" field. The returned close func is never nil.
func readUpload(c *gin.Context) (service.Upload, func(), bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, 40001, "file is required")
		return service.Upload{}, func() {}, false
	}
	f, err := fh.Open()
	if err != nil {
		BadRequest(c, 40001, "cannot read uploaded file: "+err.Error())
		return service.Upload{}, func() {}, false
	}
	return service.Upload{
		Filename: fh.Filename,
		Content:  f,
		Size:     fh.Size,
		MimeType: fh.Header.Get("Content-Type"),
	}, func() { _ = f.Close() }, true
}

func documentFilter(c *gin.Context) service.DocumentFilter {
	pg, _, _ := pageOf(c)
	return service.DocumentFilter{ProjectID: parseID(c.Query("project_id")), Page: pg}
}

// POST /recordings
func (h *DocumentHandler) CreateRecording(c *gin.Context) {
	projectID := parseID(formValue(c, "project_id"))
	title := formValue(c, "title")
	if projectID == 0 || title == "" {
		BadRequest(c, 40001, "project_id and title are required")
		return
	}
	var duration *int
	if s := formValue(c, "duration_seconds"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d < 0 {
			BadRequest(c, 40001, "duration_seconds must be a non-negative integer")
			return
		}
		duration = &d
	}
	up, closeFn, ok := readUpload(c)
	defer closeFn()
	if !ok {
		return
	}

	rec, err := h.docService.CreateRecording(c.Request.Context(), middleware.GetActor(c), service.RecordingInput{
		ProjectID:       projectID,
		Title:           title,
		Description:     formValue(c, "description"),
		DurationSeconds: duration,
		Upload:          up,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, rec)
}

// GET /recordings
func (h *DocumentHandler) ListRecordings(c *gin.Context) {
	f := documentFilter(c)
	list, total, err := h.docService.ListRecordings(c.Request.Context(), middleware.GetActor(c), f)
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, list, total, f.Page.Page, f.Page.PageSize)
}

// GET /recordings/:id
func (h *DocumentHandler) GetRecording(c *gin.Context) {
	rec, err := h.docService.GetRecording(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rec)
}

// GET /recordings/:id/download-url
func (h *DocumentHandler) RecordingDownloadURL(c *gin.Context) {
	url, err := h.docService.RecordingDownloadURL(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"download_url": url})
}

// PUT /recordings/:id
func (h *DocumentHandler) UpdateRecording(c *gin.Context) {
	var req documentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	rec, err := h.docService.UpdateRecording(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), service.DocumentUpdate{
		Name:            req.Title,
		Description:     req.Description,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, rec)
}

// DELETE /recordings/:id
func (h *DocumentHandler) DeleteRecording(c *gin.Context) {
	if err := h.docService.DeleteRecording(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id"))); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /files
func (h *DocumentHandler) CreateFile(c *gin.Context) {
	projectID := parseID(formValue(c, "project_id"))
	if projectID == 0 {
		BadRequest(c, 40001, "project_id is required")
		return
	}
	up, closeFn, ok := readUpload(c)
	defer closeFn()
	if !ok {
		return
	}
	name := formValue(c, "name")
	if name == "" {
		name = up.Filename
	}

	f, err := h.docService.CreateFile(c.Request.Context(), middleware.GetActor(c), service.FileInput{
		ProjectID:   projectID,
		Name:        name,
		Description: formValue(c, "description"),
		Upload:      up,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, f)
}

// GET /files
func (h *DocumentHandler) ListFiles(c *gin.Context) {
	f := documentFilter(c)
	list, total, err := h.docService.ListFiles(c.Request.Context(), middleware.GetActor(c), f)
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, list, total, f.Page.Page, f.Page.PageSize)
}

// GET /files/:id
func (h *DocumentHandler) GetFile(c *gin.Context) {
	f, err := h.docService.GetFile(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, f)
}

// GET /files/:id/download-url
func (h *DocumentHandler) FileDownloadURL(c *gin.Context) {
	url, err := h.docService.FileDownloadURL(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"download_url": url})
}

// PUT /files/:id
func (h *DocumentHandler) UpdateFile(c *gin.Context) {
	var req documentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	f, err := h.docService.UpdateFile(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), service.DocumentUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, f)
}

// DELETE /files/:id
func (h *DocumentHandler) DeleteFile(c *gin.Context) {
	if err := h.docService.DeleteFile(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id"))); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
