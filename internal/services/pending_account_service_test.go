package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/models"
	apperrors "github.com/charlesng35/stomanager/pkg/errors"
)

func TestPendingCreateStoresUnverifiedSignup(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	result, err := f.pending.Create(ctx, CreatePendingInput{
		Email:      "  New.User@Example.com ",
		Name:       " New User ",
		Password:   testPassword,
		AdminEmail: "Approver@Example.com",
	})
	require.NoError(t, err)
	require.True(t, result.EmailSent)
	require.Equal(t, "new.user@example.com", result.Account.Email)
	require.Equal(t, models.RoleAdminUser, result.Account.Role)
	require.NotEqual(t, testPassword, result.Account.PasswordHash)

	found, err := f.pending.FindByEmail(ctx, "new.user@example.com")
	require.NoError(t, err)
	require.False(t, found.OTPVerified)
	require.False(t, found.AdminApproved)
	require.NotNil(t, found.AdminEmail)
	require.Equal(t, "approver@example.com", *found.AdminEmail)
	require.Equal(t, f.clock.Now().Add(DefaultPendingTTL), found.ExpiresAt.UTC())

	require.Len(t, f.notifier.otps, 1)
	require.Equal(t, models.OTPPurposeSignup, f.notifier.otps[0].Purpose)
	require.Zero(t, f.accountCount(t, "new.user@example.com"))
}

func TestPendingCreateValidation(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreatePendingInput
		msg   string
	}{
		{"missing fields", CreatePendingInput{Email: "a@example.com", Password: testPassword}, "Missing required fields"},
		{"bad email", CreatePendingInput{Email: "not-an-email", Name: "A", Password: testPassword}, "Invalid email format"},
		{"short password", CreatePendingInput{Email: "a@example.com", Name: "A", Password: "short"}, "Password must be at least 8 characters"},
		{"bad role", CreatePendingInput{Email: "a@example.com", Name: "A", Password: testPassword, Role: "ROOT"}, "Invalid role"},
		{"bad approver", CreatePendingInput{Email: "a@example.com", Name: "A", Password: testPassword, AdminEmail: "nope"}, "Invalid admin email format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.pending.Create(ctx, tc.input)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			require.EqualError(t, err, tc.msg)
		})
	}
}

func TestPendingCreateRejectsTakenEmail(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	seedAccount(t, f.db, "taken@example.com", models.RoleAdminUser)
	_, err := f.pending.Create(ctx, CreatePendingInput{Email: "taken@example.com", Name: "T", Password: testPassword})
	require.ErrorIs(t, err, ErrUserExists)

	f.signup(t, "queued@example.com", "")
	_, err = f.pending.Create(ctx, CreatePendingInput{Email: "QUEUED@example.com", Name: "Q", Password: testPassword})
	require.ErrorIs(t, err, ErrUserExists)
	require.Contains(t, err.Error(), "already pending")
}

func TestPendingCreateAllowedAfterExpiry(t *testing.T) {
	f := newSignupFixture(t)

	f.signup(t, "again@example.com", "")
	f.clock.Advance(DefaultPendingTTL + time.Minute)

	_, err := f.pending.FindByEmail(context.Background(), "again@example.com")
	require.ErrorIs(t, err, ErrPendingAccountNotFound)

	f.signup(t, "again@example.com", "")

	var rows int64
	require.NoError(t, f.db.Model(&models.PendingAccount{}).Where("email = ?", "again@example.com").Count(&rows).Error)
	require.Equal(t, int64(1), rows, "the expired signup is cleared")
}

func TestPendingCreateSurvivesEmailFailure(t *testing.T) {
	f := newSignupFixture(t)
	f.notifier.fail = true

	result, err := f.pending.Create(context.Background(), CreatePendingInput{
		Email:    "quiet@example.com",
		Name:     "Quiet",
		Password: testPassword,
	})
	require.NoError(t, err)
	require.False(t, result.EmailSent)

	_, err = f.pending.FindByEmail(context.Background(), "quiet@example.com")
	require.NoError(t, err)
}

func TestPendingDefaultApproverApplied(t *testing.T) {
	f := newSignupFixture(t, WithDefaultApprover("Boss@Example.com"))

	pending, _ := f.signup(t, "staff@example.com", "")
	require.True(t, pending.RequiresApproval())
	require.Equal(t, "boss@example.com", *pending.AdminEmail)
}

func TestPendingResendOTP(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	_, first := f.signup(t, "resend@example.com", "")

	result, err := f.pending.ResendOTP(ctx, "resend@example.com")
	require.NoError(t, err)
	require.True(t, result.EmailSent)
	second := f.notifier.lastCode(t, "resend@example.com")

	if first != second {
		ok, err := f.otp.Verify(ctx, "resend@example.com", first, models.OTPPurposeSignup)
		require.NoError(t, err)
		require.False(t, ok)
	}

	_, err = f.pending.MarkOTPVerified(ctx, "resend@example.com")
	require.NoError(t, err)
	_, err = f.pending.ResendOTP(ctx, "resend@example.com")
	require.ErrorIs(t, err, ErrEmailAlreadyVerified)

	_, err = f.pending.ResendOTP(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrPendingAccountNotFound)
}

func TestPendingFindByIDHidesExpired(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	pending, _ := f.signup(t, "token@example.com", "approver@example.com")

	found, err := f.pending.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	require.Equal(t, pending.Email, found.Email)

	f.clock.Advance(DefaultPendingTTL)
	_, err = f.pending.FindByID(ctx, pending.ID)
	require.ErrorIs(t, err, ErrPendingAccountNotFound)
}

func TestPendingListAwaitingApproval(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	f.signup(t, "waiting@example.com", "approver@example.com")
	f.signup(t, "unverified@example.com", "approver@example.com")
	_, err := f.pending.MarkOTPVerified(ctx, "waiting@example.com")
	require.NoError(t, err)

	list, err := f.pending.ListAwaitingApproval(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "waiting@example.com", list[0].Email)
}

func TestPendingPurgeExpired(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()

	f.signup(t, "old@example.com", "")
	f.clock.Advance(DefaultPendingTTL / 2)
	f.signup(t, "fresh@example.com", "")
	f.clock.Advance(DefaultPendingTTL/2 + time.Second)

	removed, err := f.pending.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var nilSvc *PendingAccountService
	removed, err = nilSvc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestPendingCreateLosesRaceToConcurrentSignup(t *testing.T) {
	f := newSignupFixture(t)

	// A second signup for the same email commits between our check and our insert.
	afterStatement(t, f.db, "query", "pending_users", func(tx *gorm.DB) error {
		return tx.Create(&models.PendingAccount{
			Email:        "race@example.com",
			Name:         "Rival",
			PasswordHash: "x",
			Role:         models.RoleAdminUser,
			ExpiresAt:    f.clock.Now().Add(time.Hour),
		}).Error
	})

	_, err := f.pending.Create(context.Background(), CreatePendingInput{
		Email:    "race@example.com",
		Name:     "Racer",
		Password: testPassword,
	})
	require.ErrorIs(t, err, ErrUserExists)
	require.EqualError(t, err, "A signup request with this email is already pending")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 409, appErr.StatusCode)

	var codes int64
	require.NoError(t, f.db.Model(&models.OneTimeCode{}).Where("email = ?", "race@example.com").Count(&codes).Error)
	require.Zero(t, codes)
}

func TestPendingLiveSignupIndex(t *testing.T) {
	f := newSignupFixture(t)
	expires := f.clock.Now().Add(time.Hour)
	row := func(approved bool) *models.PendingAccount {
		return &models.PendingAccount{
			Email:         "idx@example.com",
			Name:          "Idx",
			PasswordHash:  "x",
			Role:          models.RoleAdminUser,
			AdminApproved: approved,
			ExpiresAt:     expires,
		}
	}

	require.NoError(t, f.db.Create(row(true)).Error)
	require.NoError(t, f.db.Create(row(false)).Error)
	err := f.db.Create(row(false)).Error
	require.True(t, isUniqueConstraintError(err), "expected unique violation, got %v", err)
}

func TestPendingResendKeepsOneLiveCode(t *testing.T) {
	f := newSignupFixture(t)
	ctx := context.Background()
	f.signup(t, "serial@example.com", "")

	var codes []string
	for i := 0; i < 3; i++ {
		_, err := f.pending.ResendOTP(ctx, "serial@example.com")
		require.NoError(t, err)
		codes = append(codes, f.notifier.lastCode(t, "serial@example.com"))
	}

	var live []models.OneTimeCode
	require.NoError(t, f.db.Where("email = ? AND used = ?", "serial@example.com", false).Find(&live).Error)
	require.Len(t, live, 1)
	require.Equal(t, codes[len(codes)-1], live[0].Code)
}
