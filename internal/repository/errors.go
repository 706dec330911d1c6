package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqQueryCanceled        = "57014"
	pqLockNotAvailable     = "55P03"
)

// classify tags storage failures the caller may retry with domain.ErrTransient
// and maps unique violations to their domain errors. Other errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "accounts_email_key":
			return fmt.Errorf("%w: %w", domain.ErrDuplicateEmail, err)
		case "accounts_referral_code_key":
			return fmt.Errorf("%w: %w", domain.ErrDuplicateReferralCode, err)
		case "referral_edges_pkey", "referral_edges_referred_id_key":
			return fmt.Errorf("%w: duplicate referral edge: %w", domain.ErrInconsistent, err)
		}
		return err
	}

	if isTransient(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == pqSerializationFailure,
			code == pqDeadlockDetected,
			code == pqQueryCanceled,
			code == pqLockNotAvailable:
			return true
		// 08: connection exception, 53: insufficient resources, 57P0x: shutdown
		case strings.HasPrefix(code, "08"),
			strings.HasPrefix(code, "53"),
			strings.HasPrefix(code, "57P0"):
			return true
		}
	}
	return false
}

func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
