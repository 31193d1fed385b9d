package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/policy"
	"github.com/blinkportal/backend/pkg/gcalendar"
	"github.com/blinkportal/backend/pkg/sharepoint"
	"gorm.io/gorm"
)

// Page selects a window of a list. Zero values mean the first 20 rows.
type Page struct {
	Page     int
	PageSize int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	p = p.normalize()
	return q.Offset((p.Page - 1) * p.PageSize).Limit(p.PageSize)
}

type ctxKey int

const clientIPKey ctxKey = iota

// WithClientIP records the caller address for operation logs.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

func now() *time.Time {
	t := time.Now()
	return &t
}

// writeLog appends an operation log row inside tx.
func writeLog(ctx context.Context, tx *gorm.DB, actor policy.Actor, action, resourceType string, resourceID uint, detail model.JSONMap) error {
	entry := &model.OperationLog{
		UserID:       actor.ID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       detail,
		IP:           clientIP(ctx),
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("write operation log: %w", err)
	}
	return nil
}

func isMember(db *gorm.DB, projectID, userID uint) (bool, error) {
	var count int64
	err := db.Model(&model.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

// memberProjects is a subquery of the project ids userID belongs to.
func memberProjects(db *gorm.DB, userID uint) *gorm.DB {
	return db.Model(&model.ProjectMember{}).Select("project_id").Where("user_id = ?", userID)
}

func projectExists(db *gorm.DB, id uint) error {
	var p model.Project
	if err := db.Select("id").First(&p, id).Error; err != nil {
		return lookupErr(err, "project")
	}
	return nil
}

// scoped restricts a list query on a project-owned table to the rows actor may read.
func scoped(q *gorm.DB, db *gorm.DB, actor policy.Actor, r policy.Resource) *gorm.DB {
	switch policy.ListScope(actor, r) {
	case policy.ScopeAll:
		return q
	case policy.ScopeMemberProjects:
		if r == policy.Project {
			return q.Where("id IN (?)", memberProjects(db, actor.ID))
		}
		return q.Where("project_id IN (?)", memberProjects(db, actor.ID))
	case policy.ScopeOwned:
		return q.Where("user_id = ?", actor.ID)
	}
	return q.Where("1 = 0")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// faultOf classifies a best-effort adapter failure for logs.
func faultOf(err error) string {
	if errors.Is(err, ErrConfiguration) ||
		errors.Is(err, sharepoint.ErrNotConfigured) ||
		errors.Is(err, gcalendar.ErrNotConfigured) {
		return "configuration"
	}
	return "adapter"
}
