package validator

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"solde/internal/models"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrTitleRequired      = errors.New("title is required")
	ErrTitleTooLong       = errors.New("title cannot exceed 100 characters")
	ErrInvalidAmount      = errors.New("amount must be greater than 0")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrFutureDate         = errors.New("date cannot be in the future")
	ErrDescriptionTooLong = errors.New("description cannot exceed 500 characters")
	ErrMissingDescription = errors.New("a description is required")
)

var (
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

// ValidateExpense checks a complete expense record: on create all fields are
// present, on update the caller merges the patch first and validates the
// result.
func ValidateExpense(title string, amountMinor int64, category string, date time.Time, description string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > 100 {
		return ErrTitleTooLong
	}
	if amountMinor <= 0 {
		return ErrInvalidAmount
	}
	if !models.ValidCategory(category) {
		return ErrInvalidCategory
	}
	if date.After(time.Now()) {
		return ErrFutureDate
	}
	if utf8.RuneCountInString(description) > 500 {
		return ErrDescriptionTooLong
	}
	return nil
}

// IsValidationError reports whether err is one of the input-validation
// sentinels, so handlers can map it to a 400 without listing each one.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInvalidPassword),
		errors.Is(err, ErrTitleRequired),
		errors.Is(err, ErrTitleTooLong),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidCategory),
		errors.Is(err, ErrFutureDate),
		errors.Is(err, ErrDescriptionTooLong),
		errors.Is(err, ErrMissingDescription):
		return true
	}
	return false
}
