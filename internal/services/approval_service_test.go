package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/auth"
	"github.com/charlesng35/stomanager/internal/models"
)

func TestVerifyAndRouteRequestsApproval(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	pending, code := f.signup(t, "alice@example.com", "boss@example.com")

	result, err := f.approval.VerifyAndRoute(ctx, "Alice@Example.com", code)
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Equal(t, StatusPendingAdminApproval, result.Status)
	require.Nil(t, result.Account)
	require.True(t, result.EmailSent)

	require.Len(t, f.notifier.approvals, 1)
	sent := f.notifier.approvals[0]
	require.Equal(t, "boss@example.com", sent.Approver)
	require.Equal(t, "https://sto.example.com/api/auth/approve?token="+pending.ID, sent.Link)

	require.Zero(t, f.accountCount(t, "alice@example.com"))

	found, err := f.pending.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	require.True(t, found.OTPVerified)
	require.False(t, found.AdminApproved)
}

func TestVerifyAndRouteAutoApproves(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	_, code := f.signup(t, "bob@example.com", "")

	result, err := f.approval.VerifyAndRoute(ctx, "bob@example.com", code)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Status)
	require.NotNil(t, result.Account)
	require.True(t, result.Account.IsActive)
	require.Equal(t, models.RoleAdminUser, result.Account.Role)

	require.Equal(t, int64(1), f.accountCount(t, "bob@example.com"))
	require.Equal(t, []string{"bob@example.com"}, f.notifier.welcomes)

	again, err := f.approval.VerifyAndRoute(ctx, "bob@example.com", code)
	require.NoError(t, err)
	require.False(t, again.Verified)
	require.Equal(t, StatusOTPSent, again.Status)
}

func TestVerifyAndRouteWrongCode(t *testing.T) {
	f := newSignupFixture(t)

	_, code := f.signup(t, "carol@example.com", "")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	result, err := f.approval.VerifyAndRoute(context.Background(), "carol@example.com", wrong)
	require.NoError(t, err)
	require.False(t, result.Verified)

	found, err := f.pending.FindByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	require.False(t, found.OTPVerified)
}

func TestPromoteStateChecks(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()
	admin := auth.Principal{ID: "admin-id", Email: "boss@example.com", Role: models.RoleSuperUser}

	_, err := f.approval.Promote(ctx, "", &admin)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.approval.Promote(ctx, "does-not-exist", &admin)
	require.ErrorIs(t, err, ErrInvalidToken)

	pending, code := f.signup(t, "dave@example.com", "boss@example.com")
	_, err = f.approval.Promote(ctx, pending.ID, &admin)
	require.ErrorIs(t, err, ErrEmailNotVerified)

	_, err = f.approval.VerifyAndRoute(ctx, "dave@example.com", code)
	require.NoError(t, err)

	account, err := f.approval.Promote(ctx, pending.ID, &admin)
	require.NoError(t, err)
	require.Equal(t, "dave@example.com", account.Email)
	require.Equal(t, pending.PasswordHash, account.PasswordHash)

	_, err = f.approval.Promote(ctx, pending.ID, nil)
	require.ErrorIs(t, err, ErrAlreadyApproved)
	require.Equal(t, int64(1), f.accountCount(t, "dave@example.com"))

	logs, _, err := f.audit.List(ctx, AuditListOptions{Filters: AuditFilters{Action: AuditActionApprove}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "boss@example.com", logs[0].Actor)
}

func TestPromoteExpiredPendingIsInvalid(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	pending, code := f.signup(t, "late@example.com", "boss@example.com")
	_, err := f.approval.VerifyAndRoute(ctx, "late@example.com", code)
	require.NoError(t, err)

	f.clock.Advance(DefaultPendingTTL + time.Second)

	_, err = f.approval.Promote(ctx, pending.ID, nil)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Zero(t, f.accountCount(t, "late@example.com"))
}

func TestPromoteConcurrentYieldsOneAccount(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	pending, code := f.signup(t, "race@example.com", "boss@example.com")
	_, err := f.approval.VerifyAndRoute(ctx, "race@example.com", code)
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.approval.Promote(ctx, pending.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Len(t, failures, workers-1)
	for _, err := range failures {
		require.True(t, errors.Is(err, ErrAlreadyApproved) || errors.Is(err, ErrUserExists), err.Error())
	}
	require.Equal(t, int64(1), f.accountCount(t, "race@example.com"))
}

func TestPromoteClaimGuardsAgainstInterleavedApproval(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	pending, code := f.signup(t, "claim@example.com", "boss@example.com")
	_, err := f.approval.VerifyAndRoute(ctx, "claim@example.com", code)
	require.NoError(t, err)

	// Another approver claims the row after our read but before our conditional update.
	afterStatement(t, f.db, "query", "pending_users", func(tx *gorm.DB) error {
		return tx.Model(&models.PendingAccount{}).
			Where("id = ?", pending.ID).
			Update("admin_approved", true).Error
	})

	_, err = f.approval.Promote(ctx, pending.ID, nil)
	require.ErrorIs(t, err, ErrAlreadyApproved)
	require.Zero(t, f.accountCount(t, "claim@example.com"))
}

func TestPromoteConflictsWithExistingAccount(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	pending, code := f.signup(t, "dup@example.com", "boss@example.com")
	_, err := f.approval.VerifyAndRoute(ctx, "dup@example.com", code)
	require.NoError(t, err)

	// An administrator created the login directly while the signup was waiting.
	seedAccount(t, f.db, "dup@example.com", models.RoleAdminUser)

	_, err = f.approval.Promote(ctx, pending.ID, nil)
	require.ErrorIs(t, err, ErrUserExists)

	found, err := f.pending.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	require.False(t, found.AdminApproved, "failed promotion must roll back the claim")
}

func TestApprovalLinkEscapesToken(t *testing.T) {
	f := newSignupFixture(t)
	link := f.approval.ApprovalLink("a b&c")
	require.True(t, strings.HasSuffix(link, "token=a+b%26c"))
}
