package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/database/testutil"
	"github.com/charlesng35/stomanager/internal/models"
	"github.com/charlesng35/stomanager/pkg/crypto"
)

const testPassword = "password123"

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentOTP struct {
	Email   string
	Code    string
	Purpose models.OTPPurpose
}

type sentApproval struct {
	Approver string
	Email    string
	Link     string
}

// recordingNotifier captures outbound notifications instead of sending them.
type recordingNotifier struct {
	mu        sync.Mutex
	otps      []sentOTP
	approvals []sentApproval
	welcomes  []string
	tests     []string
	fail      bool
}

func (n *recordingNotifier) result() Result {
	if n.fail {
		return Result{Success: false, Error: "smtp unavailable"}
	}
	return Result{Success: true, MessageID: "<test@stomanager.local>"}
}

func (n *recordingNotifier) SendOTP(_ context.Context, email, _ string, code string, purpose models.OTPPurpose) Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otps = append(n.otps, sentOTP{Email: email, Code: code, Purpose: purpose})
	return n.result()
}

func (n *recordingNotifier) SendApprovalRequest(_ context.Context, approverEmail, accountEmail, _ string, link string) Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvals = append(n.approvals, sentApproval{Approver: approverEmail, Email: accountEmail, Link: link})
	return n.result()
}

func (n *recordingNotifier) SendWelcome(_ context.Context, email, _ string) Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, email)
	return n.result()
}

func (n *recordingNotifier) SendTest(_ context.Context, to string) Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tests = append(n.tests, to)
	return n.result()
}

func (n *recordingNotifier) CheckHealth(context.Context) Health {
	if n.fail {
		return Health{Healthy: false, Error: "smtp unavailable"}
	}
	return Health{Healthy: true}
}

func (n *recordingNotifier) lastCode(t *testing.T, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.otps) - 1; i >= 0; i-- {
		if n.otps[i].Email == email {
			return n.otps[i].Code
		}
	}
	t.Fatalf("no code sent to %s", email)
	return ""
}

// signupFixture wires the signup lifecycle services against one database and clock.
type signupFixture struct {
	db       *gorm.DB
	clock    *testClock
	notifier *recordingNotifier
	audit    *AuditService
	otp      *OTPService
	pending  *PendingAccountService
	approval *ApprovalService
}

func newSignupFixture(t *testing.T, pendingOpts ...PendingOption) *signupFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()
	notifier := &recordingNotifier{}

	audit, err := NewAuditService(db)
	require.NoError(t, err)

	otp, err := NewOTPService(db, WithOTPClock(clock.Now))
	require.NoError(t, err)

	opts := append([]PendingOption{WithPendingClock(clock.Now), WithPendingAudit(audit)}, pendingOpts...)
	pending, err := NewPendingAccountService(db, otp, notifier, opts...)
	require.NoError(t, err)

	approval, err := NewApprovalService(db, pending, otp, notifier,
		WithApprovalClock(clock.Now),
		WithApprovalBaseURL("https://sto.example.com"),
		WithApprovalAudit(audit),
	)
	require.NoError(t, err)

	return &signupFixture{
		db:       db,
		clock:    clock,
		notifier: notifier,
		audit:    audit,
		otp:      otp,
		pending:  pending,
		approval: approval,
	}
}

// signup creates a pending account and returns it with the code that was mailed.
func (f *signupFixture) signup(t *testing.T, email, adminEmail string) (*models.PendingAccount, string) {
	t.Helper()

	result, err := f.pending.Create(context.Background(), CreatePendingInput{
		Email:      email,
		Name:       "Test User",
		Password:   testPassword,
		AdminEmail: adminEmail,
	})
	require.NoError(t, err)
	return result.Account, f.notifier.lastCode(t, result.Account.Email)
}

func (f *signupFixture) accountCount(t *testing.T, email string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Account{}).Where("email = ?", email).Count(&count).Error)
	return count
}

// seedAccount inserts an active account with a known password.
func seedAccount(t *testing.T, db *gorm.DB, email string, role models.Role) *models.Account {
	t.Helper()

	hashed, err := crypto.HashPassword(testPassword)
	require.NoError(t, err)

	account := &models.Account{
		Email:        email,
		Name:         "Seeded " + string(role),
		PasswordHash: hashed,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

type recordingRevoker struct {
	revoked []string
	err     error
}

func (r *recordingRevoker) RevokeUserSessions(_ context.Context, userID string) error {
	r.revoked = append(r.revoked, userID)
	return r.err
}

var errBoom = errors.New("boom")

// afterStatement runs fn once, on the same connection, right after the first statement
// of the given kind ("query" or "update") against table. It stands in for a concurrent
// writer whose commit lands between two statements of the code under test.
func afterStatement(t *testing.T, db *gorm.DB, kind, table string, fn func(tx *gorm.DB) error) {
	t.Helper()

	var once sync.Once
	hook := func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement.Table != table {
			return
		}
		once.Do(func() {
			require.NoError(t, fn(tx.Session(&gorm.Session{NewDB: true})))
		})
	}

	name := "test:after_" + kind + "_" + table
	var err error
	switch kind {
	case "query":
		err = db.Callback().Query().After("gorm:query").Register(name, hook)
	case "update":
		err = db.Callback().Update().After("gorm:update").Register(name, hook)
	default:
		t.Fatalf("unsupported statement kind %q", kind)
	}
	require.NoError(t, err)
}
