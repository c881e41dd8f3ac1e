package forum

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/finboard/finboard/internal/shared"
)

// Service enforces authorship rules over the repository.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	return &Service{repo: repo, validate: v}
}

// Posts lists every post, newest first.
func (s *Service) Posts(ctx context.Context) ([]Post, error) {
	return s.repo.ListPosts(ctx)
}

// Detail loads a post and its comments.
func (s *Service) Detail(ctx context.Context, id int64) (PostDetail, error) {
	post, err := s.repo.Post(ctx, id)
	if err != nil {
		return PostDetail{}, err
	}
	comments, err := s.repo.Comments(ctx, id)
	if err != nil {
		return PostDetail{}, err
	}
	return PostDetail{Post: post, Comments: comments}, nil
}

// EditablePost loads a post for editing by author.
func (s *Service) EditablePost(ctx context.Context, author shared.Identity, id int64) (Post, error) {
	post, err := s.repo.Post(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !author.Owns(post.AuthorID) {
		return post, ErrNotOwner
	}
	return post, nil
}

// CreatePost stores a post written by author. The author never comes from
// the form.
func (s *Service) CreatePost(ctx context.Context, author shared.Identity, in PostInput) (Post, error) {
	in = normalisePost(in)
	if err := s.check(in); err != nil {
		return Post{}, err
	}
	return s.repo.CreatePost(ctx, Post{Title: in.Title, Content: in.Content, AuthorID: author.UserID})
}

// UpdatePost edits a post owned by author.
func (s *Service) UpdatePost(ctx context.Context, author shared.Identity, id int64, in PostInput) error {
	if _, err := s.EditablePost(ctx, author, id); err != nil {
		return err
	}
	in = normalisePost(in)
	if err := s.check(in); err != nil {
		return err
	}
	return s.repo.UpdatePost(ctx, id, in)
}

// DeletePost removes a post owned by author, with its comments.
func (s *Service) DeletePost(ctx context.Context, author shared.Identity, id int64) error {
	if _, err := s.EditablePost(ctx, author, id); err != nil {
		return err
	}
	return s.repo.DeletePost(ctx, id)
}

// AddComment attaches a comment by author to post postID.
func (s *Service) AddComment(ctx context.Context, author shared.Identity, postID int64, in CommentInput) (Comment, error) {
	if _, err := s.repo.Post(ctx, postID); err != nil {
		return Comment{}, err
	}
	if strings.TrimSpace(in.Content) == "" {
		in.Content = ""
	}
	if err := s.check(in); err != nil {
		return Comment{}, err
	}
	return s.repo.CreateComment(ctx, Comment{PostID: postID, AuthorID: author.UserID, Content: in.Content})
}

// DeleteComment removes a comment of post postID owned by author.
func (s *Service) DeleteComment(ctx context.Context, author shared.Identity, postID, commentID int64) error {
	comment, err := s.repo.Comment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.PostID != postID {
		return ErrNotFound
	}
	if !author.Owns(comment.AuthorID) {
		return ErrNotOwner
	}
	return s.repo.DeleteComment(ctx, commentID)
}

func normalisePost(in PostInput) PostInput {
	in.Title = strings.TrimSpace(in.Title)
	if strings.TrimSpace(in.Content) == "" {
		in.Content = ""
	}
	return in
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
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "This field is required."
		case "max":
			fields[fe.Field()] = fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
		default:
			fields[fe.Field()] = fmt.Sprintf("Failed the %s rule.", fe.Tag())
		}
	}
	return &ValidationError{Fields: fields}
}
