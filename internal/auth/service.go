// Package auth はアカウント登録、ログイン、ログアウト、ログインユーザー取得を提供する。
//
// セッションの発行・破棄は session.Issuer に委譲し、このパッケージはアカウントストアと
// パスワード照合のみを扱う。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/campustaxi/internal/model"
	"github.com/hitoshi/campustaxi/internal/repository"
)

// SessionIssuer はセッションの発行・破棄のインターフェース。
type SessionIssuer interface {
	Create(ctx context.Context, identity model.SessionIdentity) (*model.Session, error)
	Destroy(ctx context.Context, token string) error
}

// TextSanitizer は表示名のサニタイズに使用するインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// Recorder は認証関連のメトリクス記録インターフェース。
type Recorder interface {
	RecordSignup(outcome string)
	RecordLogin(outcome string)
}

// メトリクスのoutcomeラベル。
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// SignupInput はアカウント登録の入力値。
type SignupInput struct {
	Email    string
	Password string
	Name     string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	hasher    PasswordHasher
	issuer    SessionIssuer
	sanitizer TextSanitizer
	recorder  Recorder
}

// NewService はServiceを生成する。sanitizerとrecorderはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	issuer SessionIssuer,
	sanitizer TextSanitizer,
	recorder Recorder,
) *Service {
	return &Service{
		userRepo:  userRepo,
		hasher:    hasher,
		issuer:    issuer,
		sanitizer: sanitizer,
		recorder:  recorder,
	}
}

// Signup はアカウントを作成し、そのアカウントのセッションを発行する。
// メールアドレスは大文字小文字を区別した完全一致で一意性を判定する。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, *model.Session, error) {
	name := s.sanitize(in.Name)

	var missing []string
	if strings.TrimSpace(in.Email) == "" {
		missing = append(missing, "email")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		s.recordSignup(OutcomeRejected)
		return nil, nil, model.NewMissingFieldsError(missing)
	}
	if err := validateSignupLengths(in.Email, in.Password, name); err != nil {
		s.recordSignup(OutcomeRejected)
		return nil, nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		s.recordSignup(OutcomeError)
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		s.recordSignup(OutcomeRejected)
		return nil, nil, model.NewEmailExistsError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.recordSignup(OutcomeError)
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 同時登録の競合はストアの一意制約で EMAIL_EXISTS になる
	if err := s.userRepo.Create(ctx, user); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.recordSignup(OutcomeRejected)
			return nil, nil, err
		}
		s.recordSignup(OutcomeError)
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	sess, err := s.issuer.Create(ctx, identityOf(user))
	if err != nil {
		s.recordSignup(OutcomeError)
		return nil, nil, err
	}

	s.recordSignup(OutcomeSuccess)
	slog.Info("user signed up", slog.String("user_id", user.ID))
	return user, sess, nil
}

// validateSignupLengths はusersテーブルのカラム幅とbcryptの入力上限を超える値を拒否する。
// パスワードはバイト数、それ以外は文字数で数える。
func validateSignupLengths(email, password, name string) error {
	if utf8.RuneCountInString(email) > model.MaxEmailLength {
		return model.NewFieldTooLongError("email", model.MaxEmailLength, "文字")
	}
	if len(password) > model.MaxPasswordBytes {
		return model.NewFieldTooLongError("password", model.MaxPasswordBytes, "バイト")
	}
	if utf8.RuneCountInString(name) > model.MaxNameLength {
		return model.NewFieldTooLongError("name", model.MaxNameLength, "文字")
	}
	return nil
}

// Login はメールアドレスとパスワードを照合し、セッションを発行する。
// アカウントが存在しない場合とパスワード不一致は区別しない。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	var missing []string
	if strings.TrimSpace(email) == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		s.recordLogin(OutcomeRejected)
		return nil, nil, model.NewMissingFieldsError(missing)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		s.recordLogin(OutcomeError)
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		s.recordLogin(OutcomeRejected)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.recordLogin(OutcomeRejected)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	sess, err := s.issuer.Create(ctx, identityOf(user))
	if err != nil {
		s.recordLogin(OutcomeError)
		return nil, nil, err
	}

	s.recordLogin(OutcomeSuccess)
	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, sess, nil
}

// Logout はセッションを破棄する。トークンが空または存在しない場合も成功とする。
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.issuer.Destroy(ctx, token)
}

// CurrentUser はセッションのユーザーIDからアカウントを取得する。
// セッションは有効だがアカウントが存在しない場合は USER_NOT_FOUND を返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) sanitize(raw string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(raw)
	}
	return s.sanitizer.Sanitize(raw)
}

func (s *Service) recordSignup(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordSignup(outcome)
	}
}

func (s *Service) recordLogin(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(outcome)
	}
}

// identityOf はアカウントからセッションレコードを作る。
func identityOf(user *model.User) model.SessionIdentity {
	return model.SessionIdentity{UserID: user.ID, Name: user.Name}
}
