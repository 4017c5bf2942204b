// Package auth implements login, founder registration, logout and founder
// two-factor enrolment.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appauth "github.com/astranetix/bms/common/auth"
	"github.com/astranetix/bms/common/dbutil"
	"github.com/astranetix/bms/common/errors"
	"github.com/astranetix/bms/internal/audit"
	"github.com/astranetix/bms/pkg/metrics"
	"github.com/astranetix/bms/pkg/models"
	"github.com/astranetix/bms/pkg/security"
)

const invalidCredentials = "Invalid email or password"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// LoginResponse carries the access token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserType    string `json:"user_type"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
}

// RegisterRequest is the body of POST /auth/register/founder.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	CompanyName string `json:"company_name" binding:"required,max=255"`
	FullName    string `json:"full_name" binding:"required,max=255"`
	Phone       string `json:"phone,omitempty" binding:"omitempty,max=50"`
	Address     string `json:"address,omitempty"`
}

// UserResponse describes an account of any type.
type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	UserType string `json:"user_type"`
	IsActive bool   `json:"is_active"`
}

// TOTPSetupResponse is returned when a founder starts 2FA enrolment.
type TOTPSetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// account is the part of a founder, ISP or subscriber row login needs.
type account struct {
	ID           uuid.UUID
	UserType     string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	TOTPSecret   string
	TOTPEnabled  bool
}

// Service authenticates every account type.
type Service struct {
	db      *gorm.DB
	logger  *zap.Logger
	issuer  *appauth.TokenIssuer
	revoked appauth.RevocationStore
	audit   *audit.Service
	appName string
}

func NewService(db *gorm.DB, logger *zap.Logger, issuer *appauth.TokenIssuer, revoked appauth.RevocationStore, auditSvc *audit.Service, appName string) *Service {
	if revoked == nil {
		revoked = appauth.NewMemoryRevocationStore()
	}
	if appName == "" {
		appName = "AstraNetix"
	}
	return &Service{
		db:      db,
		logger:  logger,
		issuer:  issuer,
		revoked: revoked,
		audit:   auditSvc,
		appName: appName,
	}
}

// Login checks founders, then ISPs, then subscribers. The first account with
// a matching password wins.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	acct, err := s.authenticate(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}
	if acct == nil {
		metrics.LoginAttempts.WithLabelValues("unknown", "invalid").Inc()
		return nil, errors.Unauthorized.Explain(invalidCredentials)
	}
	if !acct.IsActive {
		metrics.LoginAttempts.WithLabelValues(acct.UserType, "inactive").Inc()
		return nil, errors.Unauthorized.Explain(invalidCredentials)
	}
	if acct.TOTPEnabled {
		if req.TOTPCode == "" || !totp.Validate(req.TOTPCode, acct.TOTPSecret) {
			metrics.LoginAttempts.WithLabelValues(acct.UserType, "totp_failed").Inc()
			return nil, errors.Unauthorized.Explain("Invalid or missing two-factor code")
		}
	}

	token, err := s.issuer.Issue(acct.ID, acct.UserType, acct.Email, acct.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	metrics.LoginAttempts.WithLabelValues(acct.UserType, "success").Inc()

	return &LoginResponse{
		AccessToken: token.Token,
		TokenType:   "bearer",
		UserType:    acct.UserType,
		UserID:      acct.ID.String(),
		Name:        acct.Name,
		Email:       acct.Email,
	}, nil
}

func (s *Service) authenticate(ctx context.Context, email, password string) (*account, error) {
	db := s.db.WithContext(ctx)

	var founder models.Founder
	if err := db.Where("email = ?", email).Limit(1).Find(&founder).Error; err != nil {
		return nil, fmt.Errorf("failed to look up founder: %w", err)
	}
	if founder.ID != uuid.Nil && security.VerifyPassword(password, founder.PasswordHash) {
		return &account{
			ID: founder.ID, UserType: appauth.UserTypeFounder, Email: founder.Email, Name: founder.FullName,
			IsActive: founder.IsActive, TOTPSecret: founder.TOTPSecret, TOTPEnabled: founder.TOTPEnabled,
		}, nil
	}

	var isp models.ISP
	if err := db.Where("email = ?", email).Limit(1).Find(&isp).Error; err != nil {
		return nil, fmt.Errorf("failed to look up isp: %w", err)
	}
	if isp.ID != uuid.Nil && security.VerifyPassword(password, isp.PasswordHash) {
		return &account{
			ID: isp.ID, UserType: appauth.UserTypeISP, Email: isp.Email, Name: isp.CompanyName, IsActive: isp.IsActive,
		}, nil
	}

	var user models.User
	if err := db.Where("email = ?", email).Limit(1).Find(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user.ID != uuid.Nil && security.VerifyPassword(password, user.PasswordHash) {
		return &account{
			ID: user.ID, UserType: appauth.UserTypeUser, Email: user.Email, Name: user.FullName, IsActive: user.IsActive,
		}, nil
	}
	return nil, nil
}

// RegisterFounder creates a platform founder account.
func (s *Service) RegisterFounder(ctx context.Context, req *RegisterRequest) (*UserResponse, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Founder{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, errors.Invalid.Explain("Email already registered")
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	founder := &models.Founder{
		Email:        req.Email,
		PasswordHash: hash,
		CompanyName:  req.CompanyName,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Address:      req.Address,
		IsActive:     true,
		Settings:     models.JSONMap{},
	}
	if err := s.db.WithContext(ctx).Create(founder).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}

	s.logger.Info("Founder registered", zap.String("founder_id", founder.ID.String()))
	if s.audit != nil {
		id := founder.ID
		_ = s.audit.Record(ctx, audit.Entry{
			UserID: &id, TenantID: &id, TenantType: appauth.UserTypeFounder,
			Action: audit.ActionCreate, Resource: "founder",
			NewValues: models.JSONMap{"email": founder.Email, "company_name": founder.CompanyName},
		})
	}

	return &UserResponse{
		ID:       founder.ID.String(),
		Email:    founder.Email,
		Name:     founder.FullName,
		UserType: appauth.UserTypeFounder,
		IsActive: founder.IsActive,
	}, nil
}

// Me loads the caller's current record.
func (s *Service) Me(ctx context.Context, p *appauth.Principal) (*UserResponse, error) {
	db := s.db.WithContext(ctx)
	switch p.UserType {
	case appauth.UserTypeFounder:
		f, err := dbutil.FindExisting[models.Founder](db.Where("id = ?", p.ID), "Founder")
		if err != nil {
			return nil, err
		}
		return &UserResponse{ID: f.ID.String(), Email: f.Email, Name: f.FullName, UserType: p.UserType, IsActive: f.IsActive}, nil
	case appauth.UserTypeISP:
		isp, err := dbutil.FindExisting[models.ISP](db.Where("id = ?", p.ID), "ISP")
		if err != nil {
			return nil, err
		}
		return &UserResponse{ID: isp.ID.String(), Email: isp.Email, Name: isp.CompanyName, UserType: p.UserType, IsActive: isp.IsActive}, nil
	default:
		u, err := dbutil.FindExisting[models.User](db.Where("id = ?", p.ID), "User")
		if err != nil {
			return nil, err
		}
		return &UserResponse{ID: u.ID.String(), Email: u.Email, Name: u.FullName, UserType: p.UserType, IsActive: u.IsActive}, nil
	}
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, p *appauth.Principal) error {
	if p.TokenID == "" {
		return nil
	}
	until := p.ExpiresAt
	if until.IsZero() {
		until = time.Now().Add(s.issuer.Expiry())
	}
	if err := s.revoked.Revoke(ctx, p.TokenID, until); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// SetupTOTP generates a secret for the founder and stores it as pending. 2FA
// is only enforced once VerifyTOTP succeeds.
func (s *Service) SetupTOTP(ctx context.Context, founderID uuid.UUID) (*TOTPSetupResponse, error) {
	founder, err := dbutil.FindExisting[models.Founder](s.db.WithContext(ctx).Where("id = ?", founderID), "Founder")
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.appName,
		AccountName: founder.Email,
		SecretSize:  20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	err = s.db.WithContext(ctx).Model(founder).Updates(map[string]interface{}{
		"totp_secret":  key.Secret(),
		"totp_enabled": false,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	return &TOTPSetupResponse{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// VerifyTOTP enables 2FA when code matches the pending secret.
func (s *Service) VerifyTOTP(ctx context.Context, founderID uuid.UUID, code string) error {
	founder, err := dbutil.FindExisting[models.Founder](s.db.WithContext(ctx).Where("id = ?", founderID), "Founder")
	if err != nil {
		return err
	}
	if founder.TOTPSecret == "" {
		return errors.Invalid.Explain("Two-factor setup has not been started")
	}
	if !totp.Validate(code, founder.TOTPSecret) {
		return errors.Invalid.Explain("Invalid two-factor code")
	}
	if err := s.db.WithContext(ctx).Model(founder).Update("totp_enabled", true).Error; err != nil {
		return fmt.Errorf("failed to enable TOTP: %w", err)
	}
	s.logger.Info("Founder enabled two-factor authentication", zap.String("founder_id", founderID.String()))
	return nil
}
