package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/logging"
)

type reconcileAccounts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*domain.Account, error)
}

type reconcileEdges interface {
	CountEdgesForReferred(ctx context.Context, referredID uuid.UUID) (int, error)
	ReferrerOf(ctx context.Context, referredID uuid.UUID) (uuid.UUID, error)
}

type reconcileLedger interface {
	SumDeltas(ctx context.Context, accountID uuid.UUID) (int64, int, error)
}

type authorizer interface {
	Authorize(ctx context.Context, actor auth.Claims, op auth.Operation) error
}

type IntegrityReport struct {
	AccountID     uuid.UUID `json:"account_id"`
	Balance       int64     `json:"balance"`
	LedgerSum     int64     `json:"ledger_sum"`
	LedgerEntries int       `json:"ledger_entries"`
	Referrals     int       `json:"referrals"`
	Findings      []string  `json:"findings"`
	CheckedAt     time.Time `json:"checked_at"`
}

func (r *IntegrityReport) Consistent() bool {
	return len(r.Findings) == 0
}

// Reconciler checks one account's ledger and referral invariants against
// what is stored.
type Reconciler struct {
	accounts reconcileAccounts
	edges    reconcileEdges
	ledger   reconcileLedger
	gate     authorizer
}

func NewReconciler(accounts reconcileAccounts, edges reconcileEdges, ledger reconcileLedger, gate authorizer) *Reconciler {
	return &Reconciler{accounts: accounts, edges: edges, ledger: ledger, gate: gate}
}

// CheckAccount always returns the report when the checks could run. Any
// finding is also reported as domain.ErrInconsistent.
func (r *Reconciler) CheckAccount(ctx context.Context, actor auth.Claims, accountID uuid.UUID) (*IntegrityReport, error) {
	if err := r.gate.Authorize(ctx, actor, auth.OpReconcile); err != nil {
		return nil, fmt.Errorf("CheckAccount: %w", err)
	}

	a, err := r.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("CheckAccount: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("CheckAccount: %w", err)
	}

	sum, entries, err := r.ledger.SumDeltas(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("CheckAccount: %w", err)
	}

	report := &IntegrityReport{
		AccountID:     a.ID,
		Balance:       a.Balance,
		LedgerSum:     sum,
		LedgerEntries: entries,
		Referrals:     len(a.Referrals),
		Findings:      []string{},
		CheckedAt:     time.Now().UTC(),
	}

	if a.Balance < 0 {
		report.Findings = append(report.Findings, fmt.Sprintf("negative balance %d", a.Balance))
	}
	if sum != a.Balance {
		report.Findings = append(report.Findings,
			fmt.Sprintf("ledger deltas sum to %d but balance is %d", sum, a.Balance))
	}

	seen := make(map[uuid.UUID]bool, len(a.Referrals))
	for _, id := range a.Referrals {
		if id == a.ID {
			report.Findings = append(report.Findings, "account appears in its own referrals")
		}
		if seen[id] {
			report.Findings = append(report.Findings, fmt.Sprintf("referral %s listed more than once", id))
		}
		seen[id] = true
	}

	findings, err := r.checkReferredBy(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("CheckAccount: %w", err)
	}
	report.Findings = append(report.Findings, findings...)

	if !report.Consistent() {
		logging.FromContext(ctx).Error("account integrity violation",
			"account_id", a.ID,
			"findings", report.Findings,
		)
		return report, fmt.Errorf("CheckAccount: %w: %s", domain.ErrInconsistent, strings.Join(report.Findings, "; "))
	}
	return report, nil
}

func (r *Reconciler) checkReferredBy(ctx context.Context, a *domain.Account) ([]string, error) {
	edges, err := r.edges.CountEdgesForReferred(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	if a.ReferredBy == nil {
		if edges > 0 {
			return []string{"referral edge exists but referred_by is empty"}, nil
		}
		return nil, nil
	}

	referrer, err := r.accounts.GetByReferralCode(ctx, *a.ReferredBy)
	if errors.Is(err, domain.ErrNotFound) {
		return []string{fmt.Sprintf("referred_by %s does not resolve", *a.ReferredBy)}, nil
	}
	if err != nil {
		return nil, err
	}

	if edges != 1 {
		return []string{fmt.Sprintf("expected one referral edge, found %d", edges)}, nil
	}
	if !referrer.HasReferred(a.ID) {
		return []string{fmt.Sprintf("referrer %s does not list this account", referrer.ID)}, nil
	}
	owner, err := r.edges.ReferrerOf(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if owner != referrer.ID {
		return []string{fmt.Sprintf("referral edge points at %s, referred_by at %s", owner, referrer.ID)}, nil
	}
	return nil, nil
}
