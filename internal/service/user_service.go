package service

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/in004/bookscape/internal/auth"
	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/datamodels/user"
	"github.com/in004/bookscape/internal/infra/mail"
)

// ErrInvalidCredentials 邮箱或密码错误
var ErrInvalidCredentials = errors.New("invalid email or password")

type RegisterInput struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// 一次性令牌有效期
const (
	verifyTokenTTL = time.Hour
	resetTokenTTL  = time.Hour
)

type UserService struct {
	repo        user.Repository
	jwt         *config.JWTConfig
	tokenTTL    time.Duration
	mailer      MailQueue
	frontendURL string
	log         *zap.Logger
}

// NewUserService mailer 为 nil 时不发送验证与重置邮件
func NewUserService(repo user.Repository, jwt *config.JWTConfig, tokenTTL time.Duration, mailer MailQueue, frontendURL string, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{repo: repo, jwt: jwt, tokenTTL: tokenTTL, mailer: mailer, frontendURL: frontendURL, log: log}
}

// Register 注册普通用户并投递邮箱验证邮件
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	u, err := s.create(ctx, in, user.RoleClient)
	if err != nil {
		return nil, err
	}
	token, err := newSecretToken()
	if err != nil {
		return nil, err
	}
	expiry := time.Now().Add(verifyTokenTTL)
	if _, err := s.repo.UpdateFields(ctx, u.ID, map[string]interface{}{
		"verify_token":        token,
		"verify_token_expiry": expiry,
	}); err != nil {
		return nil, err
	}
	u.VerifyToken, u.VerifyTokenExpiry = token, &expiry
	s.enqueue(ctx, verifyEmailMail(u.Email, frontendLink(s.frontendURL, "/verify-email", token)))
	return u, nil
}

// CreateStaff 后台创建管理员或快递员账号
func (s *UserService) CreateStaff(ctx context.Context, in RegisterInput, role string) (*user.User, error) {
	if role != user.RoleAdmin && role != user.RoleCourier {
		return nil, invalidf("role must be %q or %q", user.RoleAdmin, user.RoleCourier)
	}
	return s.create(ctx, in, role)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, role string) (*user.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Surname) == "" {
		return nil, invalidf("name and surname are required")
	}
	if addr, err := netmail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalidf("invalid email")
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, invalidf("email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &user.User{
		Name:     strings.TrimSpace(in.Name),
		Surname:  strings.TrimSpace(in.Surname),
		Email:    email,
		Password: hash,
		Role:     role,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login 登录并返回 JWT
func (s *UserService) Login(ctx context.Context, email, password string) (string, *user.User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := auth.GenerateToken(s.jwt, auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}, s.tokenTTL)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, "user")
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context) ([]*user.User, error) {
	return s.repo.ListAll(ctx)
}

func checkPassword(pw string) error {
	if len(pw) < 6 {
		return invalidf("password must be at least 6 characters")
	}
	return nil
}

func hashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *UserService) enqueue(ctx context.Context, m mail.Message) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Enqueue(ctx, m); err != nil {
		GetMonitor().RecordMQError()
		s.log.Warn("queue account mail failed", zap.String("kind", m.Kind), zap.String("email", m.To), zap.Error(err))
	}
}

// VerifyEmail 校验邮箱验证令牌，成功后令牌作废
func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalidf("no token provided")
	}
	u, err := s.repo.GetByVerifyToken(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalidf("Invalid or expired token")
	}
	if err != nil {
		return err
	}
	if u.VerifyTokenExpiry == nil || time.Now().After(*u.VerifyTokenExpiry) {
		return invalidf("Invalid or expired token")
	}
	n, err := s.repo.UpdateFieldsWhere(ctx, u.ID, "verify_token = ?", []interface{}{token}, map[string]interface{}{
		"is_verified":         true,
		"verify_token":        "",
		"verify_token_expiry": nil,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return invalidf("Invalid or expired token")
	}
	return nil
}

// ForgotPassword 生成重置令牌并发邮件；邮箱不存在时同样返回成功，不暴露账号是否存在
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return invalidf("email is required")
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	token, err := newSecretToken()
	if err != nil {
		return err
	}
	if _, err := s.repo.UpdateFields(ctx, u.ID, map[string]interface{}{
		"reset_token":        token,
		"reset_token_expiry": time.Now().Add(resetTokenTTL),
	}); err != nil {
		return err
	}
	s.enqueue(ctx, passwordResetMail(u.Email, frontendLink(s.frontendURL, "/reset-password", token)))
	return nil
}

// ResetPassword 用重置令牌设置新密码，令牌只能用一次
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return invalidf("token and new password are required")
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	u, err := s.repo.GetByResetToken(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalidf("Invalid or expired token")
	}
	if err != nil {
		return err
	}
	if u.ResetTokenExpiry == nil || time.Now().After(*u.ResetTokenExpiry) {
		_, _ = s.repo.UpdateFieldsWhere(ctx, u.ID, "reset_token = ?", []interface{}{token}, map[string]interface{}{
			"reset_token":        "",
			"reset_token_expiry": nil,
		})
		return invalidf("Token has expired")
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	n, err := s.repo.UpdateFieldsWhere(ctx, u.ID, "reset_token = ?", []interface{}{token}, map[string]interface{}{
		"password":           hash,
		"reset_token":        "",
		"reset_token_expiry": nil,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return invalidf("Invalid or expired token")
	}
	s.log.Info("password reset", zap.Int64("user_id", u.ID))
	return nil
}

// ChangePassword 已登录用户凭旧密码修改密码
func (s *UserService) ChangePassword(ctx context.Context, p auth.Principal, current, newPassword string) error {
	if current == "" || newPassword == "" {
		return invalidf("current password and new password are required")
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	u, err := s.repo.GetByID(ctx, p.UserID)
	if err != nil {
		return translateNotFound(err, "user")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	// 旧哈希未变才写入，避免与并发的重置互相覆盖
	n, err := s.repo.UpdateFieldsWhere(ctx, u.ID, "password = ?", []interface{}{u.Password}, map[string]interface{}{
		"password": hash,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: password changed concurrently", ErrConflict)
	}
	return nil
}
