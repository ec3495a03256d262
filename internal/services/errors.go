package services

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/stomanager/pkg/errors"
)

var (
	// ErrUserExists reports a signup or account create against an email that is taken.
	ErrUserExists = apperrors.New("USER_EXISTS", "User with this email already exists", http.StatusConflict)
	// ErrSignupPending is ErrUserExists for an email with an unapproved signup in flight.
	ErrSignupPending = ErrUserExists.WithMessage("A signup request with this email is already pending")
	// ErrUserNotFound indicates the requested account does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrInvalidToken is returned when an approval token does not match a live pending account.
	ErrInvalidToken = apperrors.New("INVALID_TOKEN", "Invalid or expired token", http.StatusBadRequest)
	// ErrEmailNotVerified blocks promotion of a pending account whose OTP is unverified.
	ErrEmailNotVerified = apperrors.New("EMAIL_NOT_VERIFIED", "Email not verified", http.StatusBadRequest)
	// ErrAlreadyApproved is returned when a pending account was promoted already.
	ErrAlreadyApproved = apperrors.New("ALREADY_APPROVED", "User already approved", http.StatusBadRequest)
	// ErrApprovalFailed wraps unexpected datastore failures during promotion.
	ErrApprovalFailed = apperrors.New("APPROVAL_FAILED", "Failed to approve user", http.StatusInternalServerError)
	// ErrPendingAccountNotFound indicates there is no live pending signup for the lookup.
	ErrPendingAccountNotFound = apperrors.ErrNotFound.WithMessage("No pending signup found for this email")
	// ErrEmailAlreadyVerified rejects a resend once the OTP has been confirmed.
	ErrEmailAlreadyVerified = apperrors.ErrInvalidState.WithMessage("Email already verified")
	// ErrMissingID is returned when an identifier path or body parameter is empty.
	ErrMissingID = apperrors.New("MISSING_ID", "User ID is required", http.StatusBadRequest)
	// ErrSelfDeactivation stops an administrator from deleting their own account.
	ErrSelfDeactivation = apperrors.NewValidation("Cannot delete your own account")

	// ErrNoRecords is returned when an upload parses to zero rows.
	ErrNoRecords = apperrors.New("NO_RECORDS", "No valid records found in file", http.StatusBadRequest)
	// ErrLogCreationFailed is returned when the upload log row cannot be written.
	ErrLogCreationFailed = apperrors.New("LOG_CREATION_FAILED", "Failed to create upload log", http.StatusInternalServerError)
	// ErrUploadNotFound indicates the upload id is unknown to the caller.
	ErrUploadNotFound = apperrors.New("UPLOAD_NOT_FOUND", "Upload not found", http.StatusNotFound)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}

// isUnavailableError reports connection-level failures that should surface as 503.
func isUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

// storeError maps a datastore failure onto the client-visible taxonomy.
func storeError(err error, fallback *apperrors.AppError) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isUnavailableError(err) {
		return apperrors.ErrServiceUnavailable.WithInternal(err)
	}
	if fallback == nil {
		fallback = apperrors.ErrInternalServer
	}
	return fallback.WithInternal(err)
}
