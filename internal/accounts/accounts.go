package accounts

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/woodchain/internal/identity"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"net/mail"
	"strings"
)

type UserType string

const (
	UserTypeUser     UserType = "User"
	UserTypeSupplier UserType = "Supplier"

	DefaultSupplierDescription = "Supplier Description"
	minPasswordLen             = 6
	pgUniqueViolation          = "23505"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// SignupError is a rejected signup form.
type SignupError struct{ Message string }

func (e *SignupError) Error() string { return e.Message }

// Principal is the authenticated identity carried by a session.
type Principal struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	UserType    UserType `json:"user_type"`
	SupplierID  int64    `json:"supplier_id,omitempty"`
	CompanyName string   `json:"company_name"`
}

func (p Principal) IsSupplier() bool { return p.UserType == UserTypeSupplier && p.SupplierID > 0 }

type SignupRequest struct {
	UserType       UserType `json:"user_type"`
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	CompanyName    string   `json:"company_name"`
	CompanyAddress string   `json:"company_address"`
}

// Binder registers a new user's ledger address inside the signup transaction.
type Binder interface {
	Bind(ctx context.Context, q identity.Execer, userID int64) (common.Address, error)
}

type Service struct {
	DB     orders.DB
	Binder Binder // nil when writes are sent from a shared node account
	Log    *zap.Logger
	Cost   int // bcrypt cost, 0 = bcrypt.DefaultCost
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (Principal, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateSignup(req); err != nil {
		return Principal{}, err
	}
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		return Principal{}, fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Principal{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p := Principal{Email: req.Email, UserType: req.UserType, CompanyName: req.CompanyName}
	err = tx.QueryRow(ctx, `
		INSERT INTO users(email, password_hash, user_type, company_name, company_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING user_id`,
		req.Email, string(hash), string(req.UserType), req.CompanyName, req.CompanyAddress,
	).Scan(&p.UserID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Principal{}, ErrEmailTaken
		}
		return Principal{}, fmt.Errorf("insert user: %w", err)
	}

	if req.UserType == UserTypeSupplier {
		err = tx.QueryRow(ctx, `
			INSERT INTO suppliers(user_id, description) VALUES ($1, $2)
			RETURNING supplier_id`, p.UserID, DefaultSupplierDescription).Scan(&p.SupplierID)
		if err != nil {
			return Principal{}, fmt.Errorf("insert supplier: %w", err)
		}
	}

	if s.Binder != nil {
		if _, err := s.Binder.Bind(ctx, tx, p.UserID); err != nil {
			return Principal{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Principal{}, fmt.Errorf("commit signup: %w", err)
	}
	if s.Log != nil {
		s.Log.Info("user signed up", zap.Int64("user_id", p.UserID), zap.String("user_type", string(p.UserType)))
	}
	return p, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Principal, error) {
	var (
		p        Principal
		hash     string
		userType string
	)
	err := s.DB.QueryRow(ctx, `
		SELECT u.user_id, u.email, u.password_hash, u.user_type, u.company_name, COALESCE(s.supplier_id, 0)
		FROM users u
		LEFT JOIN suppliers s ON s.user_id = u.user_id
		WHERE u.email = $1`, strings.ToLower(strings.TrimSpace(email)),
	).Scan(&p.UserID, &p.Email, &hash, &userType, &p.CompanyName, &p.SupplierID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Principal{}, ErrInvalidCredentials
	}
	p.UserType = UserType(userType)
	return p, nil
}

func validateSignup(req SignupRequest) error {
	if req.UserType != UserTypeUser && req.UserType != UserTypeSupplier {
		return &SignupError{Message: "user_type must be User or Supplier"}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return &SignupError{Message: "email is invalid"}
	}
	if len(req.Password) < minPasswordLen {
		return &SignupError{Message: fmt.Sprintf("password must be at least %d characters", minPasswordLen)}
	}
	if strings.TrimSpace(req.CompanyName) == "" {
		return &SignupError{Message: "company_name is required"}
	}
	return nil
}
