// Package accounts manages forum user accounts and session authentication.
package accounts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/finboard/finboard/internal/shared"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrInvalidInput wraps field-level form failures.
	ErrInvalidInput = errors.New("accounts: invalid input")
)

// User is a registered forum member.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	FirstName    string
	LastName     string
	DateJoined   time.Time
}

// SignupInput is the registration form.
type SignupInput struct {
	Username  string `form:"username" validate:"required,max=150,username"`
	Email     string `form:"email" validate:"omitempty,email,max=254"`
	Password1 string `form:"password1" validate:"required,password"`
	Password2 string `form:"password2" validate:"required,eqfield=Password1"`
}

// ProfileInput is the profile edit form.
type ProfileInput struct {
	FirstName string `form:"first_name" validate:"max=150"`
	LastName  string `form:"last_name" validate:"max=150"`
	Email     string `form:"email" validate:"omitempty,email,max=254"`
}

// PasswordInput is the password change form.
type PasswordInput struct {
	OldPassword  string `form:"old_password" validate:"required"`
	NewPassword1 string `form:"new_password1" validate:"required,password"`
	NewPassword2 string `form:"new_password2" validate:"required,eqfield=NewPassword1"`
}

// ValidationError lists offending form fields by name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("accounts: invalid fields: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
