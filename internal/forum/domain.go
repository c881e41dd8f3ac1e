// Package forum implements the community board: posts, comments and the
// ownership rules guarding their mutation.
package forum

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/finboard/finboard/internal/shared"
)

var (
	// ErrNotFound is returned when a post or comment does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrNotOwner is returned when the identity does not own the target.
	ErrNotOwner = errors.New("forum: not the author")
	// ErrInvalidInput wraps field-level form failures.
	ErrInvalidInput = errors.New("forum: invalid input")
)

// Post is a board entry. CreatedAt is assigned by the database.
type Post struct {
	ID         int64
	Title      string
	Content    string
	AuthorID   int64
	AuthorName string
	CreatedAt  time.Time
}

// Comment belongs to exactly one post.
type Comment struct {
	ID         int64
	PostID     int64
	AuthorID   int64
	AuthorName string
	Content    string
	CreatedAt  time.Time
}

// PostDetail is a post with its comments, oldest first.
type PostDetail struct {
	Post     Post
	Comments []Comment
}

// PostInput is the create and update form.
type PostInput struct {
	Title   string `form:"title" validate:"required,max=100"`
	Content string `form:"content" validate:"required"`
}

// CommentInput is the comment form.
type CommentInput struct {
	Content string `form:"content" validate:"required"`
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
	return fmt.Sprintf("forum: invalid fields: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
