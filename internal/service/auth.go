package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/policy"
	jwtpkg "github.com/blinkportal/backend/pkg/jwt"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const minPasswordLen = 8

type AuthService struct {
	db         *gorm.DB
	bookings   *BookingService
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthService builds the service. bookings is used to clean up calendar
// events when a user is deleted and may be nil.
func NewAuthService(db *gorm.DB, bookings *BookingService, jwtSecret string, accessTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		db:         db,
		bookings:   bookings,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type UserInput struct {
	Email    string
	Password string
	FullName string
	Role     model.Role
}

type UserFilter struct {
	Keyword string
	Role    model.Role
	Active  *bool
	Page
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, *TokenPair, error) {
	db := s.db.WithContext(ctx)
	var user model.User
	err := db.Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil && !isNotFound(err) {
		return nil, nil, err
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return nil, nil, newErr(ErrUnauthenticated, 40101, "incorrect email or password")
	}
	if !user.IsActive {
		return nil, nil, newErr(ErrPermissionDenied, 40104, "user is disabled")
	}

	if err := db.Model(&user).UpdateColumn("last_login_at", now()).Error; err != nil {
		return nil, nil, err
	}
	pair, err := s.issue(&user)
	if err != nil {
		return nil, nil, err
	}
	return &user, pair, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := jwtpkg.ParseToken(s.jwtSecret, refreshToken, jwtpkg.TypeRefresh)
	if err != nil {
		return nil, &Error{Code: 40103, Message: "invalid refresh token", Err: errors.Join(ErrUnauthenticated, err)}
	}
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if isNotFound(err) {
			return nil, newErr(ErrUnauthenticated, 40103, "user no longer exists")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, newErr(ErrPermissionDenied, 40104, "user is disabled")
	}
	return s.issue(&user)
}

func (s *AuthService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &user, nil
}

func (s *AuthService) CreateUser(ctx context.Context, actor policy.Actor, in UserInput) (*model.User, error) {
	if !policy.Decide(actor, policy.User, policy.Create, policy.Facts{}).Allowed() {
		return nil, denied()
	}
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, invalidInput("invalid email")
	}
	if len(in.Password) < minPasswordLen {
		return nil, invalidInput("password must be at least %d characters", minPasswordLen)
	}
	if in.Role == "" {
		in.Role = model.RoleClient
	}
	if !in.Role.Valid() {
		return nil, invalidInput("invalid role %q", in.Role)
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, newErr(ErrConflict, 40901, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Email:          email,
		HashedPassword: string(hash),
		FullName:       in.FullName,
		Role:           in.Role,
		IsActive:       true,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context, actor policy.Actor, f UserFilter) ([]model.User, int64, error) {
	if !policy.Decide(actor, policy.User, policy.Read, policy.Facts{}).Allowed() {
		return nil, 0, denied()
	}
	query := s.db.WithContext(ctx).Model(&model.User{})
	if f.Keyword != "" {
		query = query.Where("full_name LIKE ? OR email LIKE ?", "%"+f.Keyword+"%", "%"+f.Keyword+"%")
	}
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	if f.Active != nil {
		query = query.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []model.User
	if err := f.Page.apply(query.Order("created_at DESC, id DESC")).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *AuthService) SetActive(ctx context.Context, actor policy.Actor, id uint, active bool) (*model.User, error) {
	return s.updateUser(ctx, actor, id, func(u *model.User) (map[string]interface{}, error) {
		if u.ID == actor.ID && !active {
			return nil, invalidState("cannot disable yourself")
		}
		return map[string]interface{}{"is_active": active}, nil
	}, model.ActionUserStatus, model.JSONMap{"is_active": active})
}

func (s *AuthService) SetRole(ctx context.Context, actor policy.Actor, id uint, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, invalidInput("invalid role %q", role)
	}
	return s.updateUser(ctx, actor, id, func(u *model.User) (map[string]interface{}, error) {
		if u.ID == actor.ID && role != u.Role {
			return nil, invalidState("cannot change your own role")
		}
		return map[string]interface{}{"role": role}, nil
	}, model.ActionUserRole, model.JSONMap{"role": role})
}

// DeleteUser removes a user with their bookings (releasing slots), their
// requests with messages, their messages on other requests and their
// memberships.
func (s *AuthService) DeleteUser(ctx context.Context, actor policy.Actor, id uint) error {
	var bookings []model.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, id).Error; err != nil {
			return lookupErr(err, "user")
		}
		if !policy.Decide(actor, policy.User, policy.Delete, policy.Facts{}).Allowed() {
			return denied()
		}
		if user.ID == actor.ID {
			return invalidState("cannot delete yourself")
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", id).Find(&bookings).Error; err != nil {
			return err
		}
		for i := range bookings {
			if err := cancelBooking(ctx, tx, actor, &bookings[i]); err != nil {
				return err
			}
		}

		var requestIDs []uint
		if err := tx.Model(&model.Request{}).Where("user_id = ?", id).Pluck("id", &requestIDs).Error; err != nil {
			return err
		}
		for _, rid := range requestIDs {
			if err := deleteRequestCascade(tx, rid); err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.RequestMessage{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.ProjectMember{}).Error; err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return writeLog(ctx, tx, actor, model.ActionUserDelete, string(policy.User), id, model.JSONMap{
			"email":    user.Email,
			"bookings": len(bookings),
			"requests": len(requestIDs),
		})
	})
	if err != nil {
		return err
	}

	if s.bookings != nil {
		for i := range bookings {
			s.bookings.syncDelete(ctx, &bookings[i])
		}
	}
	return nil
}

func (s *AuthService) updateUser(ctx context.Context, actor policy.Actor, id uint, change func(*model.User) (map[string]interface{}, error), action string, detail model.JSONMap) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return lookupErr(err, "user")
		}
		if !policy.Decide(actor, policy.User, policy.Update, policy.Facts{}).Allowed() {
			return denied()
		}
		updates, err := change(&user)
		if err != nil {
			return err
		}
		updates["updated_at"] = now()
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if err := writeLog(ctx, tx, actor, action, string(policy.User), id, detail); err != nil {
			return err
		}
		return tx.First(&user, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) issue(user *model.User) (*TokenPair, error) {
	access, accessExp, err := jwtpkg.GenerateToken(s.jwtSecret, user.ID, string(user.Role), jwtpkg.TypeAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, refreshExp, err := jwtpkg.GenerateToken(s.jwtSecret, user.ID, string(user.Role), jwtpkg.TypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
