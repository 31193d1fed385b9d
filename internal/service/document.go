package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/blinkportal/backend/internal/logs"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/policy"
	"github.com/blinkportal/backend/pkg/sharepoint"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DocumentStore is the external document storage. *sharepoint.Client implements it.
type DocumentStore interface {
	Upload(ctx context.Context, content io.Reader, filename, folder string) (*sharepoint.Item, error)
	DownloadURL(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
}

// DocumentService manages recordings and files, the two kinds of project
// documents kept in external storage.
type DocumentService struct {
	db   *gorm.DB
	docs DocumentStore
}

func NewDocumentService(db *gorm.DB, docs DocumentStore) *DocumentService {
	return &DocumentService{db: db, docs: docs}
}

type Upload struct {
	Filename string
	Content  io.Reader
	Size     int64
	MimeType string
}

type RecordingInput struct {
	ProjectID       uint
	Title           string
	Description     string
	DurationSeconds *int
	Upload          Upload
}

type FileInput struct {
	ProjectID   uint
	Name        string
	Description string
	Upload      Upload
}

// DocumentUpdate changes the non-nil fields. Name is the recording title or the file name.
type DocumentUpdate struct {
	Name            *string
	Description     *string
	DurationSeconds *int
}

type DocumentFilter struct {
	ProjectID uint
	Page
}

func (s *DocumentService) CreateRecording(ctx context.Context, actor policy.Actor, in RecordingInput) (*model.Recording, error) {
	item, err := s.upload(ctx, actor, policy.Recording, in.ProjectID, in.Upload, fmt.Sprintf("/recordings/project_%d", in.ProjectID))
	if err != nil {
		return nil, err
	}
	rec := &model.Recording{
		ProjectID:       in.ProjectID,
		Title:           in.Title,
		Description:     in.Description,
		StorageID:       item.ID,
		StorageURL:      item.WebURL,
		DurationSeconds: in.DurationSeconds,
		FileSizeBytes:   sizeOf(item, in.Upload),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		s.rollbackUpload(ctx, item.ID, err)
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return rec, nil
}

func (s *DocumentService) CreateFile(ctx context.Context, actor policy.Actor, in FileInput) (*model.File, error) {
	item, err := s.upload(ctx, actor, policy.File, in.ProjectID, in.Upload, fmt.Sprintf("/files/project_%d", in.ProjectID))
	if err != nil {
		return nil, err
	}
	mime := in.Upload.MimeType
	if mime == "" {
		mime = item.MimeType()
	}
	f := &model.File{
		ProjectID:     in.ProjectID,
		Name:          in.Name,
		Description:   in.Description,
		StorageID:     item.ID,
		StorageURL:    item.WebURL,
		FileSizeBytes: sizeOf(item, in.Upload),
		MimeType:      mime,
	}
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		s.rollbackUpload(ctx, item.ID, err)
		return nil, fmt.Errorf("create file: %w", err)
	}
	return f, nil
}

func (s *DocumentService) ListRecordings(ctx context.Context, actor policy.Actor, f DocumentFilter) ([]model.Recording, int64, error) {
	query, err := s.listQuery(ctx, actor, policy.Recording, &model.Recording{}, f)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Recording
	if err := f.Page.apply(query.Order("created_at DESC, id DESC")).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *DocumentService) ListFiles(ctx context.Context, actor policy.Actor, f DocumentFilter) ([]model.File, int64, error) {
	query, err := s.listQuery(ctx, actor, policy.File, &model.File{}, f)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.File
	if err := f.Page.apply(query.Order("created_at DESC, id DESC")).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *DocumentService) GetRecording(ctx context.Context, actor policy.Actor, id uint) (*model.Recording, error) {
	var rec model.Recording
	if err := s.load(ctx, actor, policy.Recording, policy.Read, id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *DocumentService) GetFile(ctx context.Context, actor policy.Actor, id uint) (*model.File, error) {
	var f model.File
	if err := s.load(ctx, actor, policy.File, policy.Read, id, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *DocumentService) RecordingDownloadURL(ctx context.Context, actor policy.Actor, id uint) (string, error) {
	var rec model.Recording
	if err := s.load(ctx, actor, policy.Recording, policy.Download, id, &rec); err != nil {
		return "", err
	}
	return s.downloadURL(ctx, rec.StorageID)
}

func (s *DocumentService) FileDownloadURL(ctx context.Context, actor policy.Actor, id uint) (string, error) {
	var f model.File
	if err := s.load(ctx, actor, policy.File, policy.Download, id, &f); err != nil {
		return "", err
	}
	return s.downloadURL(ctx, f.StorageID)
}

func (s *DocumentService) UpdateRecording(ctx context.Context, actor policy.Actor, id uint, in DocumentUpdate) (*model.Recording, error) {
	var rec model.Recording
	if err := s.load(ctx, actor, policy.Recording, policy.Update, id, &rec); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"updated_at": now()}
	if in.Name != nil {
		updates["title"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.DurationSeconds != nil {
		updates["duration_seconds"] = *in.DurationSeconds
	}
	db := s.db.WithContext(ctx)
	if err := db.Model(&rec).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update recording: %w", err)
	}
	if err := db.First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *DocumentService) UpdateFile(ctx context.Context, actor policy.Actor, id uint, in DocumentUpdate) (*model.File, error) {
	var f model.File
	if err := s.load(ctx, actor, policy.File, policy.Update, id, &f); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"updated_at": now()}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	db := s.db.WithContext(ctx)
	if err := db.Model(&f).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update file: %w", err)
	}
	if err := db.First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteRecording removes the row, then the stored document best effort.
func (s *DocumentService) DeleteRecording(ctx context.Context, actor policy.Actor, id uint) error {
	var rec model.Recording
	if err := s.load(ctx, actor, policy.Recording, policy.Delete, id, &rec); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&rec).Error; err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if rec.StorageID != "" {
		removeDocuments(ctx, s.docs, []string{rec.StorageID}, logrus.Fields{"recording_id": id})
	}
	return nil
}

func (s *DocumentService) DeleteFile(ctx context.Context, actor policy.Actor, id uint) error {
	var f model.File
	if err := s.load(ctx, actor, policy.File, policy.Delete, id, &f); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&f).Error; err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if f.StorageID != "" {
		removeDocuments(ctx, s.docs, []string{f.StorageID}, logrus.Fields{"file_id": id})
	}
	return nil
}

// upload checks the target project and permission, then stores the content.
func (s *DocumentService) upload(ctx context.Context, actor policy.Actor, r policy.Resource, projectID uint, up Upload, folder string) (*sharepoint.Item, error) {
	db := s.db.WithContext(ctx)
	if err := projectExists(db, projectID); err != nil {
		return nil, err
	}
	member, err := isMember(db, projectID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !policy.Decide(actor, r, policy.Create, policy.Facts{Member: member}).Allowed() {
		return nil, denied()
	}
	if up.Content == nil || up.Filename == "" {
		return nil, invalidInput("file is required")
	}
	if s.docs == nil {
		return nil, notConfigured("document storage", sharepoint.ErrNotConfigured)
	}
	item, err := s.docs.Upload(ctx, up.Content, up.Filename, folder)
	if err != nil {
		return nil, storageErr("upload", err)
	}
	return item, nil
}

func (s *DocumentService) rollbackUpload(ctx context.Context, storageID string, cause error) {
	logs.Logger.WithFields(logrus.Fields{"storage_id": storageID}).WithError(cause).
		Error("document row insert failed after upload, removing stored document")
	removeDocuments(ctx, s.docs, []string{storageID}, logrus.Fields{"rollback": true})
}

func (s *DocumentService) downloadURL(ctx context.Context, storageID string) (string, error) {
	if storageID == "" {
		return "", invalidState("document has no stored content")
	}
	if s.docs == nil {
		return "", notConfigured("document storage", sharepoint.ErrNotConfigured)
	}
	u, err := s.docs.DownloadURL(ctx, storageID)
	if err != nil {
		return "", storageErr("get download url", err)
	}
	return u, nil
}

func (s *DocumentService) listQuery(ctx context.Context, actor policy.Actor, r policy.Resource, m interface{}, f DocumentFilter) (*gorm.DB, error) {
	db := s.db.WithContext(ctx)
	query := db.Model(m)
	if f.ProjectID == 0 {
		return scoped(query, db, actor, r), nil
	}
	if err := projectExists(db, f.ProjectID); err != nil {
		return nil, err
	}
	member, err := isMember(db, f.ProjectID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !policy.Decide(actor, r, policy.Read, policy.Facts{Member: member}).Allowed() {
		return nil, denied()
	}
	return query.Where("project_id = ?", f.ProjectID), nil
}

// load fetches a recording or file into dest and checks act against the
// actor's membership of the owning project.
func (s *DocumentService) load(ctx context.Context, actor policy.Actor, r policy.Resource, act policy.Action, id uint, dest interface{}) error {
	db := s.db.WithContext(ctx)
	if err := db.First(dest, id).Error; err != nil {
		return lookupErr(err, string(r))
	}
	var projectID uint
	switch d := dest.(type) {
	case *model.Recording:
		projectID = d.ProjectID
	case *model.File:
		projectID = d.ProjectID
	}
	member, err := isMember(db, projectID, actor.ID)
	if err != nil {
		return err
	}
	if !policy.Decide(actor, r, act, policy.Facts{Member: member}).Allowed() {
		return denied()
	}
	return nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, sharepoint.ErrNotConfigured) {
		return notConfigured("document storage", err)
	}
	return adapterFailure("document storage "+op, err)
}

func sizeOf(item *sharepoint.Item, up Upload) int64 {
	if item.Size > 0 {
		return item.Size
	}
	return up.Size
}
