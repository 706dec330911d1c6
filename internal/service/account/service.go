package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/config"
	"github.com/josh-kwaku/valorpoint/internal/domain"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]domain.Account, int, error)
	Search(ctx context.Context, term string, limit, offset int) ([]domain.Account, int, error)
	Create(ctx context.Context, tx *sql.Tx, a *domain.Account) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	GetByReferralCodeForUpdate(ctx context.Context, tx *sql.Tx, code string) (*domain.Account, error)
	Update(ctx context.Context, tx *sql.Tx, a *domain.Account) error
}

type referralRepo interface {
	CreateEdge(ctx context.Context, tx *sql.Tx, referrerID, referredID uuid.UUID, at time.Time) error
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, ev *domain.AccountEvent) error
}

type authorizer interface {
	Authorize(ctx context.Context, actor auth.Claims, op auth.Operation) error
}

// CodeGenerator returns a candidate referral code.
type CodeGenerator func() (string, error)

type Service struct {
	accounts  accountRepo
	referrals referralRepo
	events    eventRepo
	gate      authorizer
	db        *sql.DB
	generate  CodeGenerator
	attempts  int
	timeout   time.Duration
	validate  *validator.Validate
}

func NewService(
	accounts accountRepo,
	referrals referralRepo,
	events eventRepo,
	gate authorizer,
	db *sql.DB,
	cfg *config.Config,
) *Service {
	return &Service{
		accounts:  accounts,
		referrals: referrals,
		events:    events,
		gate:      gate,
		db:        db,
		generate:  GenerateReferralCode,
		attempts:  cfg.ReferralCodeAttempts,
		timeout:   cfg.OperationTimeout,
		validate:  validator.New(),
	}
}

// WithCodeGenerator replaces the referral code source.
func (s *Service) WithCodeGenerator(gen CodeGenerator) *Service {
	s.generate = gen
	return s
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", notFoundAsAccount(err))
	}
	if a.IsDeleted() {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
	}
	return a, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.accounts.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("GetByEmail: %w", notFoundAsAccount(err))
	}
	if a.IsDeleted() {
		return nil, fmt.Errorf("GetByEmail: %w", domain.ErrAccountNotFound)
	}
	return a, nil
}

// Search returns live accounts whose email or display name equals term,
// ignoring case. An empty term lists every live account.
func (s *Service) Search(ctx context.Context, actor auth.Claims, term string, limit, offset int) ([]domain.Account, int, error) {
	if err := s.gate.Authorize(ctx, actor, auth.OpViewAccounts); err != nil {
		return nil, 0, fmt.Errorf("Search: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	term = strings.ToLower(strings.TrimSpace(term))
	var (
		accounts []domain.Account
		total    int
		err      error
	)
	if term == "" {
		accounts, total, err = s.accounts.List(ctx, limit, offset)
	} else {
		accounts, total, err = s.accounts.Search(ctx, term, limit, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("Search: %w", err)
	}
	return accounts, total, nil
}

// GetForAdmin returns any live account to an authorized admin.
func (s *Service) GetForAdmin(ctx context.Context, actor auth.Claims, id uuid.UUID) (*domain.Account, error) {
	if err := s.gate.Authorize(ctx, actor, auth.OpViewAccounts); err != nil {
		return nil, fmt.Errorf("GetForAdmin: %w", err)
	}
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetForAdmin: %w", err)
	}
	return a, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func notFoundAsAccount(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrAccountNotFound, err)
	}
	return err
}
