package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/valorpoint/internal/auth"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/service"
	"github.com/josh-kwaku/valorpoint/internal/service/account"
)

const testJWTSecret = "handler-test-secret"

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func testAccount() *domain.Account {
	now := time.Now().UTC()
	return &domain.Account{
		ID:           uuid.New(),
		DisplayName:  "Ada",
		Email:        "ada@example.com",
		Balance:      5025,
		Version:      2,
		ReferralCode: "AB12CD",
		Referrals:    []uuid.UUID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

type mockRegistrar struct {
	got     account.RegisterRequest
	account *domain.Account
	err     error
}

func (m *mockRegistrar) Register(_ context.Context, req account.RegisterRequest) (*domain.Account, error) {
	m.got = req
	return m.account, m.err
}

func (m *mockRegistrar) Authenticate(_ context.Context, email, password string) (*domain.Account, error) {
	return m.account, m.err
}

type mockLedger struct {
	delta  int64
	reason string
	calls  int
	err    error
}

func (m *mockLedger) AdjustBalance(_ context.Context, actor auth.Claims, accountID uuid.UUID, delta int64, reason string) (*domain.LedgerEntry, error) {
	m.calls++
	m.delta, m.reason = delta, reason
	if m.err != nil {
		return nil, m.err
	}
	return &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     accountID,
		Delta:         delta,
		BalanceBefore: 1000,
		BalanceAfter:  1000 + delta,
		ActorID:       actor.UserID,
		Reason:        reason,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func (m *mockLedger) History(context.Context, auth.Claims, uuid.UUID, int, int) ([]domain.LedgerEntry, int, error) {
	return nil, 0, nil
}

type mockIntegrity struct {
	report *service.IntegrityReport
	err    error
}

func (m *mockIntegrity) CheckAccount(context.Context, auth.Claims, uuid.UUID) (*service.IntegrityReport, error) {
	return m.report, m.err
}

func adminRequest(method, path, body string, id uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.SetPathValue("id", id.String())
	ctx := auth.ContextWithClaims(req.Context(), auth.Claims{UserID: uuid.New(), IsAdmin: true})
	return req.WithContext(ctx)
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want *AppError
	}{
		{domain.ErrUnauthorized, ErrForbidden},
		{domain.ErrInconsistent, ErrDataIntegrity},
		{domain.ErrTransient, ErrServiceUnavailable},
		{domain.ErrVersionConflict, ErrServiceUnavailable},
		{domain.ErrDuplicateEmail, ErrDuplicateEmail},
		{domain.ErrInvalidReferralCode, ErrInvalidReferralCode},
		{domain.ErrCodeGenerationExhausted, ErrCodeGenerationExhausted},
		{domain.ErrAccountNotFound, ErrAccountNotFound},
		{domain.ErrNotFound, ErrResourceNotFound},
		{domain.ErrInsufficientBalance, ErrInsufficientBalance},
		{domain.ErrInvalidAmount, ErrInvalidAmount},
		{domain.ErrInvalidCredentials, ErrInvalidCredentials},
		{domain.ErrInvalidRequest, ErrInvalidRequest},
		{errors.New("boom"), ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.want.Code, func(t *testing.T) {
			wrapped := fmt.Errorf("Outer: %w", fmt.Errorf("Inner: %w", tt.err))
			assert.Same(t, tt.want, MapDomainError(wrapped))
		})
	}
}

func TestRegister(t *testing.T) {
	t.Run("validation failures are reported per field", func(t *testing.T) {
		h := NewAuthHandler(&mockRegistrar{}, testJWTSecret, time.Hour)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
			strings.NewReader(`{"display_name":"  ","email":"nope","password":"123"}`))
		rec := httptest.NewRecorder()
		h.Register(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env := decode(t, rec)
		assert.Equal(t, "VALIDATION_FAILED", env.Code)

		var fields []FieldError
		require.NoError(t, json.Unmarshal(env.Details, &fields))
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Field
		}
		assert.ElementsMatch(t, []string{"display_name", "email", "password"}, names)
	})

	t.Run("password longer than 72 bytes is a validation failure", func(t *testing.T) {
		reg := &mockRegistrar{}
		h := NewAuthHandler(reg, testJWTSecret, time.Hour)
		body := fmt.Sprintf(`{"display_name":"Ada","email":"ada@example.com","password":%q}`, strings.Repeat("a", 73))
		rec := httptest.NewRecorder()
		h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env := decode(t, rec)
		assert.Equal(t, "VALIDATION_FAILED", env.Code)
		assert.Contains(t, string(env.Details), `"password"`)
		assert.Empty(t, reg.got.Email, "registrar must not be called")
	})

	t.Run("malformed body", func(t *testing.T) {
		h := NewAuthHandler(&mockRegistrar{}, testJWTSecret, time.Hour)
		rec := httptest.NewRecorder()
		h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decode(t, rec).Code)
	})

	t.Run("success issues a token for the new account", func(t *testing.T) {
		a := testAccount()
		reg := &mockRegistrar{account: a}
		h := NewAuthHandler(reg, testJWTSecret, time.Hour)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
			strings.NewReader(`{"display_name":"Ada","email":"ada@example.com","password":"secret1","referral_code":"zz99aa"}`))
		rec := httptest.NewRecorder()
		h.Register(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "zz99aa", reg.got.ReferredByCode)

		var body tokenResponse
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
		assert.Equal(t, a.ID, body.Account.ID)
		assert.Equal(t, "50.25", body.Account.BalanceFormatted)

		claims, err := auth.ValidateToken(body.Token, testJWTSecret)
		require.NoError(t, err)
		assert.Equal(t, a.ID, claims.UserID)
		assert.False(t, claims.IsAdmin)
	})

	t.Run("domain errors are mapped", func(t *testing.T) {
		tests := []struct {
			err    error
			status int
			code   string
		}{
			{fmt.Errorf("Register: %w", domain.ErrDuplicateEmail), http.StatusConflict, "DUPLICATE_EMAIL"},
			{fmt.Errorf("Register: %w", domain.ErrInvalidReferralCode), http.StatusUnprocessableEntity, "INVALID_REFERRAL_CODE"},
			{fmt.Errorf("Register: %w", domain.ErrCodeGenerationExhausted), http.StatusServiceUnavailable, "CODE_GENERATION_EXHAUSTED"},
		}
		for _, tt := range tests {
			t.Run(tt.code, func(t *testing.T) {
				h := NewAuthHandler(&mockRegistrar{err: tt.err}, testJWTSecret, time.Hour)
				req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
					strings.NewReader(`{"display_name":"Ada","email":"ada@example.com","password":"secret1"}`))
				rec := httptest.NewRecorder()
				h.Register(rec, req)
				assert.Equal(t, tt.status, rec.Code)
				assert.Equal(t, tt.code, decode(t, rec).Code)
			})
		}
	})
}

func TestLogin(t *testing.T) {
	h := NewAuthHandler(&mockRegistrar{err: domain.ErrInvalidCredentials}, testJWTSecret, time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"ada@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, rec).Code)
}

func TestAdminAdjustBalance(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name      string
		body      string
		ledgerErr error
		status    int
		code      string
		wantDelta int64
	}{
		{name: "credit in major units", body: `{"amount":"50.25","reason":"promo"}`, status: http.StatusOK, wantDelta: 5025},
		{name: "debit", body: `{"amount":"-3"}`, status: http.StatusOK, wantDelta: -300},
		{name: "missing amount", body: `{}`, status: http.StatusBadRequest, code: "VALIDATION_FAILED"},
		{name: "zero amount", body: `{"amount":"0.00"}`, status: http.StatusBadRequest, code: "INVALID_AMOUNT"},
		{name: "too many decimals", body: `{"amount":"1.005"}`, status: http.StatusBadRequest, code: "INVALID_AMOUNT"},
		{name: "not a number", body: `{"amount":"ten"}`, status: http.StatusBadRequest, code: "INVALID_AMOUNT"},
		{
			name:      "insufficient balance",
			body:      `{"amount":"-100"}`,
			ledgerErr: fmt.Errorf("AdjustBalance: %w", domain.ErrInsufficientBalance),
			status:    http.StatusUnprocessableEntity,
			code:      "INSUFFICIENT_BALANCE",
			wantDelta: -10000,
		},
		{
			name:      "not an admin any more",
			body:      `{"amount":"1"}`,
			ledgerErr: fmt.Errorf("AdjustBalance: %w", domain.ErrUnauthorized),
			status:    http.StatusForbidden,
			code:      "UNAUTHORIZED",
			wantDelta: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &mockLedger{err: tt.ledgerErr}
			h := NewAdminHandler(nil, ledger, nil, nil)
			rec := httptest.NewRecorder()
			h.AdjustBalance(rec, adminRequest(http.MethodPost, "/api/v1/admin/accounts/x/balance", tt.body, id))

			assert.Equal(t, tt.status, rec.Code)
			env := decode(t, rec)
			if tt.code != "" {
				assert.Equal(t, tt.code, env.Code)
			}
			if tt.wantDelta == 0 {
				assert.Zero(t, ledger.calls, "service must not be called")
				return
			}
			assert.Equal(t, tt.wantDelta, ledger.delta)
			if tt.status == http.StatusOK {
				var entry ledgerEntryDTO
				require.NoError(t, json.Unmarshal(env.Data, &entry))
				assert.Equal(t, id, entry.AccountID)
				assert.Equal(t, 1000+tt.wantDelta, entry.BalanceAfter)
			}
		})
	}
}

func TestAdminTargetRejectsBadID(t *testing.T) {
	h := NewAdminHandler(nil, &mockLedger{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/accounts/not-a-uuid/balance", strings.NewReader(`{"amount":"1"}`))
	req.SetPathValue("id", "not-a-uuid")
	req = req.WithContext(auth.ContextWithClaims(req.Context(), auth.Claims{UserID: uuid.New(), IsAdmin: true}))
	rec := httptest.NewRecorder()
	h.AdjustBalance(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ACCOUNT_NOT_FOUND", decode(t, rec).Code)
}

func TestAdminIntegrity(t *testing.T) {
	id := uuid.New()

	t.Run("consistent", func(t *testing.T) {
		h := NewAdminHandler(nil, nil, nil, &mockIntegrity{report: &service.IntegrityReport{AccountID: id}})
		rec := httptest.NewRecorder()
		h.Integrity(rec, adminRequest(http.MethodGet, "/", "", id))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("findings are returned as details", func(t *testing.T) {
		report := &service.IntegrityReport{AccountID: id, Findings: []string{"balance 10 does not match ledger sum 0"}}
		h := NewAdminHandler(nil, nil, nil, &mockIntegrity{
			report: report,
			err:    fmt.Errorf("CheckAccount: %w", domain.ErrInconsistent),
		})
		rec := httptest.NewRecorder()
		h.Integrity(rec, adminRequest(http.MethodGet, "/", "", id))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decode(t, rec)
		assert.Equal(t, "DATA_INTEGRITY_ERROR", env.Code)

		var got service.IntegrityReport
		require.NoError(t, json.Unmarshal(env.Details, &got))
		assert.Equal(t, report.Findings, got.Findings)
	})
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query      string
		limit      int
		offset     int
		wantFields int
	}{
		{"", defaultPageLimit, 0, 0},
		{"limit=5&offset=10", 5, 10, 0},
		{"limit=1000", maxPageLimit, 0, 0},
		{"limit=0", defaultPageLimit, 0, 1},
		{"limit=x&offset=-1", defaultPageLimit, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			limit, offset, fields := pagination(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil))
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.offset, offset)
			assert.Len(t, fields, tt.wantFields)
		})
	}
}

func TestReferralLink(t *testing.T) {
	assert.Equal(t, "http://valorpoint.web.app/?ref=AB12CD", ReferralLink("http://valorpoint.web.app/", "AB12CD"))
	assert.Equal(t, "https://x.test/join?lang=en&ref=AB12CD", ReferralLink("https://x.test/join?lang=en", "AB12CD"))
}

func TestUpdateProfileRequestValidate(t *testing.T) {
	str := func(s string) *string { return &s }

	assert.Len(t, updateProfileRequest{}.Validate(), 1)
	assert.Len(t, updateProfileRequest{DisplayName: str("   ")}.Validate(), 1)
	assert.Len(t, updateProfileRequest{ProfileImageURL: str("not a url")}.Validate(), 1)
	assert.Empty(t, updateProfileRequest{ProfileImageURL: str("")}.Validate())
	assert.Empty(t, updateProfileRequest{DisplayName: str("Ada"), ProfileImageURL: str("https://img.test/a.png")}.Validate())
}

func TestReadiness(t *testing.T) {
	h := &HealthHandler{checks: map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
	}}

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.WithCheck("broker", func(context.Context) error { return errors.New("connection refused") })
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "down", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "broker": "down"}, body.Checks)
}

func TestServeSpecRevalidates(t *testing.T) {
	h := ServeSpec([]byte("openapi: 3.0.3\n"))

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}
