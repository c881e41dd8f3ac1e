package accounts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/finboard/finboard/internal/shared"
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}@.+\-_]+$`)

// Service wraps account business rules.
type Service struct {
	repo     Repository
	secret   []byte
	cost     int
	validate *validator.Validate
}

// NewService constructs a new Service. secret keys the session auth hash.
func NewService(repo Repository, secret string) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	mustRegister(v, "username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "password", func(fl validator.FieldLevel) bool {
		return validPassword(fl.Field().String())
	})
	return &Service{repo: repo, secret: []byte(secret), cost: bcrypt.DefaultCost, validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("accounts: register %q validation: %v", tag, err))
	}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Signup registers a new user.
func (s *Service) Signup(ctx context.Context, in SignupInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.check(in); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password1), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	user, err := s.repo.Create(ctx, User{Username: in.Username, Email: in.Email, PasswordHash: string(hash)})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return User{}, fieldError("username", "A user with that username already exists.")
		}
		return User{}, err
	}
	return user, nil
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// User loads a user by id.
func (s *Service) User(ctx context.Context, id int64) (User, error) {
	return s.repo.ByID(ctx, id)
}

// UpdateProfile edits names and email.
func (s *Service) UpdateProfile(ctx context.Context, id int64, in ProfileInput) (User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.check(in); err != nil {
		return User{}, err
	}
	return s.repo.UpdateProfile(ctx, id, in)
}

// ChangePassword replaces the password after verifying the old one. The
// returned user carries the new hash.
func (s *Service) ChangePassword(ctx context.Context, id int64, in PasswordInput) (User, error) {
	user, err := s.repo.ByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.OldPassword)) != nil {
		return User{}, fieldError("old_password", "Your old password was entered incorrectly.")
	}
	if err := s.check(in); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword1), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
		return User{}, err
	}
	user.PasswordHash = string(hash)
	return user, nil
}

// Delete removes the account together with its posts and comments.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// AuthHash derives the value stored in the session at login. It changes
// whenever the password hash does.
func (s *Service) AuthHash(u User) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(u.PasswordHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAuthHash compares a session hash with the user's current one.
func (s *Service) VerifyAuthHash(u User, hash string) bool {
	return hash != "" && hmac.Equal([]byte(s.AuthHash(u)), []byte(hash))
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "eqfield":
		return "The two password fields didn't match."
	case "username":
		return "Enter a valid username. It may contain only letters, numbers, and @/./+/-/_ characters."
	case "password":
		return "This password must contain at least 8 characters and cannot be entirely numeric."
	default:
		return fmt.Sprintf("Failed the %s rule.", fe.Tag())
	}
}

func validPassword(pw string) bool {
	if len([]rune(pw)) < 8 {
		return false
	}
	for _, r := range pw {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
