package service

import (
	"context"
	"fmt"

	"github.com/blinkportal/backend/internal/logs"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/notify"
	"github.com/blinkportal/backend/internal/policy"
	"gorm.io/gorm"
)

type RequestService struct {
	db       *gorm.DB
	notifier notify.Notifier
}

func NewRequestService(db *gorm.DB, notifier notify.Notifier) *RequestService {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &RequestService{db: db, notifier: notifier}
}

type RequestInput struct {
	ProjectID   uint
	Title       string
	Description string
	Type        model.RequestType
}

// RequestUpdate changes the non-nil fields. Status is ignored unless the actor
// may change it.
type RequestUpdate struct {
	Title       *string
	Description *string
	Type        *model.RequestType
	Status      *model.RequestStatus
}

type RequestFilter struct {
	ProjectID uint
	Status    model.RequestStatus
	Type      model.RequestType
	Page
}

type MessageView struct {
	model.RequestMessage
	Author model.UserBrief `json:"author"`
}

func (s *RequestService) Create(ctx context.Context, actor policy.Actor, in RequestInput) (*model.Request, error) {
	db := s.db.WithContext(ctx)
	if err := projectExists(db, in.ProjectID); err != nil {
		return nil, err
	}
	member, err := isMember(db, in.ProjectID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !policy.Decide(actor, policy.Request, policy.Create, policy.Facts{Member: member}).Allowed() {
		return nil, denied()
	}
	if in.Type == "" {
		in.Type = model.RequestQuestion
	}
	if !in.Type.Valid() {
		return nil, invalidInput("invalid request type %q", in.Type)
	}

	req := &model.Request{
		UserID:      actor.ID,
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		Type:        in.Type,
		Status:      model.RequestOpen,
	}
	if err := db.Create(req).Error; err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if err := s.notifier.NotifyRequestCreated(ctx, notify.RequestCreatedEvent{
		RequestID: req.ID,
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Title:     req.Title,
		Type:      string(req.Type),
	}); err != nil {
		logs.Logger.WithField("request_id", req.ID).WithError(err).Warn("publish request created")
	}
	return req, nil
}

// List returns admins every request and clients their own. A project filter
// additionally requires read access to that project.
func (s *RequestService) List(ctx context.Context, actor policy.Actor, f RequestFilter) ([]model.Request, int64, error) {
	db := s.db.WithContext(ctx)
	query := scoped(db.Model(&model.Request{}), db, actor, policy.Request)
	if f.ProjectID != 0 {
		if err := projectExists(db, f.ProjectID); err != nil {
			return nil, 0, err
		}
		member, err := isMember(db, f.ProjectID, actor.ID)
		if err != nil {
			return nil, 0, err
		}
		if !policy.Decide(actor, policy.Project, policy.Read, policy.Facts{Member: member}).Allowed() {
			return nil, 0, denied()
		}
		query = query.Where("project_id = ?", f.ProjectID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Request
	if err := f.Page.apply(query.Order("created_at DESC, id DESC")).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *RequestService) Get(ctx context.Context, actor policy.Actor, id uint) (*model.Request, error) {
	return s.load(ctx, s.db.WithContext(ctx), actor, id, policy.Read)
}

func (s *RequestService) Update(ctx context.Context, actor policy.Actor, id uint, in RequestUpdate) (*model.Request, error) {
	db := s.db.WithContext(ctx)
	req, err := s.load(ctx, db, actor, id, policy.Update)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_at": now()}
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return nil, invalidInput("invalid request type %q", *in.Type)
		}
		updates["type"] = *in.Type
	}
	facts := policy.Facts{Owner: req.UserID == actor.ID}
	if in.Status != nil && policy.Decide(actor, policy.Request, policy.UpdateStatus, facts).Allowed() {
		if !in.Status.Valid() {
			return nil, invalidInput("invalid request status %q", *in.Status)
		}
		updates["status"] = *in.Status
	}

	if err := db.Model(req).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	if err := db.First(req, id).Error; err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.load(ctx, tx, actor, id, policy.Delete)
		if err != nil {
			return err
		}
		return deleteRequestCascade(tx, req.ID)
	})
}

func (s *RequestService) AddMessage(ctx context.Context, actor policy.Actor, id uint, text string) (*MessageView, error) {
	db := s.db.WithContext(ctx)
	req, err := s.load(ctx, db, actor, id, policy.AddMessage)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, invalidInput("message is required")
	}
	msg := &model.RequestMessage{RequestID: req.ID, UserID: actor.ID, Message: text}
	if err := db.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := s.notifier.NotifyRequestMessageAdded(ctx, notify.RequestMessageAddedEvent{
		RequestID: req.ID,
		MessageID: msg.ID,
		AuthorID:  actor.ID,
		OwnerID:   req.UserID,
	}); err != nil {
		logs.Logger.WithField("request_id", req.ID).WithError(err).Warn("publish request message")
	}

	var author model.User
	if err := db.First(&author, actor.ID).Error; err != nil && !isNotFound(err) {
		return nil, err
	}
	return &MessageView{RequestMessage: *msg, Author: author.Brief()}, nil
}

// ListMessages returns the thread oldest first.
func (s *RequestService) ListMessages(ctx context.Context, actor policy.Actor, id uint) ([]MessageView, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.load(ctx, db, actor, id, policy.ListMessages); err != nil {
		return nil, err
	}
	var msgs []model.RequestMessage
	if err := db.Where("request_id = ?", id).Order("created_at, id").Find(&msgs).Error; err != nil {
		return nil, err
	}

	authorIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		authorIDs = append(authorIDs, m.UserID)
	}
	authors := make(map[uint]model.UserBrief)
	if ids := uniqueIDs(authorIDs); len(ids) > 0 {
		var users []model.User
		if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
		for i := range users {
			authors[users[i].ID] = users[i].Brief()
		}
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		a, ok := authors[m.UserID]
		if !ok {
			a = model.UserBrief{ID: m.UserID}
		}
		out = append(out, MessageView{RequestMessage: m, Author: a})
	}
	return out, nil
}

// load fetches the request and checks act against the actor's creatorship.
func (s *RequestService) load(ctx context.Context, db *gorm.DB, actor policy.Actor, id uint, act policy.Action) (*model.Request, error) {
	var req model.Request
	if err := db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, lookupErr(err, "request")
	}
	facts := policy.Facts{Owner: req.UserID == actor.ID}
	if !policy.Decide(actor, policy.Request, act, facts).Allowed() {
		return nil, denied()
	}
	return &req, nil
}

func deleteRequestCascade(tx *gorm.DB, requestID uint) error {
	if err := tx.Where("request_id = ?", requestID).Delete(&model.RequestMessage{}).Error; err != nil {
		return fmt.Errorf("delete request messages: %w", err)
	}
	if err := tx.Delete(&model.Request{}, requestID).Error; err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}
