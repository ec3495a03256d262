package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charlesng35/stomanager/internal/models"
	apperrors "github.com/charlesng35/stomanager/pkg/errors"
)

// MinPasswordLength is the shortest password accepted for new accounts.
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the address looks like an email.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// accountInput is the shared shape validated for signups and admin-created accounts.
type accountInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// validateAccountInput normalises and validates the fields required for a new login.
func validateAccountInput(in accountInput, fallback models.Role) (email, name string, role models.Role, err error) {
	email = normalizeEmail(in.Email)
	name = strings.TrimSpace(in.Name)

	if email == "" || name == "" || in.Password == "" {
		return "", "", "", apperrors.NewValidation("Missing required fields")
	}
	if !ValidEmail(email) {
		return "", "", "", apperrors.NewValidation("Invalid email format")
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return "", "", "", apperrors.NewValidation("Password must be at least 8 characters")
	}

	role, ok := models.ParseRole(strings.TrimSpace(in.Role), fallback)
	if !ok {
		return "", "", "", apperrors.NewValidation("Invalid role")
	}

	return email, name, role, nil
}
