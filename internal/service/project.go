package service

import (
	"context"
	"fmt"
	"time"

	"github.com/blinkportal/backend/internal/logs"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/policy"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ProjectService struct {
	db   *gorm.DB
	docs DocumentStore
}

// NewProjectService builds the service. docs may be nil, in which case stored
// documents are left in place when a project is deleted.
func NewProjectService(db *gorm.DB, docs DocumentStore) *ProjectService {
	return &ProjectService{db: db, docs: docs}
}

type ProjectInput struct {
	Name        string
	Description string
	Status      model.ProjectStatus
	StartDate   *time.Time
	EndDate     *time.Time
	UserIDs     []uint
}

// ProjectUpdate changes the non-nil fields. A non-nil UserIDs replaces the membership.
type ProjectUpdate struct {
	Name        *string
	Description *string
	Status      *model.ProjectStatus
	StartDate   *time.Time
	EndDate     *time.Time
	UserIDs     *[]uint
}

type ProjectFilter struct {
	Keyword string
	Status  model.ProjectStatus
	Page
}

type ProjectDetail struct {
	model.Project
	Members []model.UserBrief `json:"members"`
}

func (s *ProjectService) Create(ctx context.Context, actor policy.Actor, in ProjectInput) (*ProjectDetail, error) {
	if !policy.Decide(actor, policy.Project, policy.Create, policy.Facts{}).Allowed() {
		return nil, denied()
	}
	if in.Status == "" {
		in.Status = model.ProjectActive
	}
	if !in.Status.Valid() {
		return nil, invalidInput("invalid project status %q", in.Status)
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return nil, invalidInput("end_date is before start_date")
	}

	project := &model.Project{
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		return replaceMembers(tx, project.ID, in.UserIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, project)
}

func (s *ProjectService) List(ctx context.Context, actor policy.Actor, f ProjectFilter) ([]model.Project, int64, error) {
	db := s.db.WithContext(ctx)
	query := scoped(db.Model(&model.Project{}), db, actor, policy.Project)
	if f.Keyword != "" {
		query = query.Where("name LIKE ?", "%"+f.Keyword+"%")
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var projects []model.Project
	if err := f.Page.apply(query.Order("created_at DESC, id DESC")).Find(&projects).Error; err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

func (s *ProjectService) Get(ctx context.Context, actor policy.Actor, id uint) (*ProjectDetail, error) {
	project, err := s.authorize(ctx, actor, id, policy.Read)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, project)
}

func (s *ProjectService) Update(ctx context.Context, actor policy.Actor, id uint, in ProjectUpdate) (*ProjectDetail, error) {
	project, err := s.authorize(ctx, actor, id, policy.Update)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_at": now()}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, invalidInput("invalid project status %q", *in.Status)
		}
		updates["status"] = *in.Status
	}
	if in.StartDate != nil {
		updates["start_date"] = in.StartDate
	}
	if in.EndDate != nil {
		updates["end_date"] = in.EndDate
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(project).Updates(updates).Error; err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		if in.UserIDs != nil {
			return replaceMembers(tx, id, *in.UserIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).First(project, id).Error; err != nil {
		return nil, err
	}
	return s.detail(ctx, project)
}

// Delete removes the project together with its recordings, files, requests,
// request messages and memberships. Stored documents are removed afterwards,
// best effort.
func (s *ProjectService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	if _, err := s.authorize(ctx, actor, id, policy.Delete); err != nil {
		return err
	}

	var storageIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := deleteProjectCascade(tx, id)
		if err != nil {
			return err
		}
		storageIDs = ids
		return writeLog(ctx, tx, actor, model.ActionProjectDelete, string(policy.Project), id,
			model.JSONMap{"documents": len(ids)})
	})
	if err != nil {
		return err
	}

	removeDocuments(ctx, s.docs, storageIDs, logrus.Fields{"project_id": id})
	return nil
}

func (s *ProjectService) AddMembers(ctx context.Context, actor policy.Actor, projectID uint, userIDs []uint) ([]model.UserBrief, []uint, error) {
	if _, err := s.authorize(ctx, actor, projectID, policy.Update); err != nil {
		return nil, nil, err
	}

	var added []model.UserBrief
	var skipped []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, uid := range userIDs {
			var user model.User
			if err := tx.First(&user, uid).Error; err != nil {
				return lookupErr(err, fmt.Sprintf("user %d", uid))
			}
			member, err := isMember(tx, projectID, uid)
			if err != nil {
				return err
			}
			if member {
				skipped = append(skipped, uid)
				continue
			}
			if err := tx.Create(&model.ProjectMember{ProjectID: projectID, UserID: uid}).Error; err != nil {
				return fmt.Errorf("add member: %w", err)
			}
			added = append(added, user.Brief())
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return added, skipped, nil
}

func (s *ProjectService) RemoveMember(ctx context.Context, actor policy.Actor, projectID, userID uint) error {
	if _, err := s.authorize(ctx, actor, projectID, policy.Update); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&model.ProjectMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound("project member")
	}
	return nil
}

// authorize loads the project and checks act against the actor's membership.
func (s *ProjectService) authorize(ctx context.Context, actor policy.Actor, id uint, act policy.Action) (*model.Project, error) {
	db := s.db.WithContext(ctx)
	var project model.Project
	if err := db.First(&project, id).Error; err != nil {
		return nil, lookupErr(err, "project")
	}
	member, err := isMember(db, id, actor.ID)
	if err != nil {
		return nil, err
	}
	if !policy.Decide(actor, policy.Project, act, policy.Facts{Member: member}).Allowed() {
		return nil, denied()
	}
	return &project, nil
}

func (s *ProjectService) detail(ctx context.Context, p *model.Project) (*ProjectDetail, error) {
	var users []model.User
	err := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&model.ProjectMember{}).Select("user_id").Where("project_id = ?", p.ID)).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	members := make([]model.UserBrief, 0, len(users))
	for i := range users {
		members = append(members, users[i].Brief())
	}
	return &ProjectDetail{Project: *p, Members: members}, nil
}

// replaceMembers sets the membership of projectID to exactly userIDs.
func replaceMembers(tx *gorm.DB, projectID uint, userIDs []uint) error {
	ids := uniqueIDs(userIDs)
	if len(ids) > 0 {
		var found int64
		if err := tx.Model(&model.User{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
			return err
		}
		if int(found) != len(ids) {
			return notFound("user")
		}
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&model.ProjectMember{}).Error; err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for _, uid := range ids {
		if err := tx.Create(&model.ProjectMember{ProjectID: projectID, UserID: uid}).Error; err != nil {
			return fmt.Errorf("add member: %w", err)
		}
	}
	return nil
}

// deleteProjectCascade deletes a project and everything it owns inside tx and
// returns the storage ids of the deleted documents.
func deleteProjectCascade(tx *gorm.DB, projectID uint) ([]string, error) {
	var storageIDs []string
	var recIDs, fileIDs []string
	if err := tx.Model(&model.Recording{}).Where("project_id = ? AND storage_id <> ''", projectID).
		Pluck("storage_id", &recIDs).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.File{}).Where("project_id = ? AND storage_id <> ''", projectID).
		Pluck("storage_id", &fileIDs).Error; err != nil {
		return nil, err
	}
	storageIDs = append(recIDs, fileIDs...)

	requests := tx.Model(&model.Request{}).Select("id").Where("project_id = ?", projectID)
	steps := []struct {
		what  string
		query *gorm.DB
		model interface{}
	}{
		{"request messages", tx.Where("request_id IN (?)", requests), &model.RequestMessage{}},
		{"requests", tx.Where("project_id = ?", projectID), &model.Request{}},
		{"recordings", tx.Where("project_id = ?", projectID), &model.Recording{}},
		{"files", tx.Where("project_id = ?", projectID), &model.File{}},
		{"members", tx.Where("project_id = ?", projectID), &model.ProjectMember{}},
	}
	for _, st := range steps {
		if err := st.query.Delete(st.model).Error; err != nil {
			return nil, fmt.Errorf("delete %s: %w", st.what, err)
		}
	}
	if err := tx.Delete(&model.Project{}, projectID).Error; err != nil {
		return nil, fmt.Errorf("delete project: %w", err)
	}
	return storageIDs, nil
}

// removeDocuments deletes stored documents best effort.
func removeDocuments(ctx context.Context, docs DocumentStore, ids []string, fields logrus.Fields) {
	if docs == nil {
		return
	}
	for _, id := range ids {
		if err := docs.Delete(ctx, id); err != nil {
			logs.Logger.WithFields(fields).WithFields(logrus.Fields{
				"storage_id": id,
				"fault":      faultOf(err),
			}).WithError(err).Warn("failed to delete stored document")
		}
	}
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
