package forum

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for posts and comments.
type Repository interface {
	ListPosts(ctx context.Context) ([]Post, error)
	Post(ctx context.Context, id int64) (Post, error)
	CreatePost(ctx context.Context, p Post) (Post, error)
	UpdatePost(ctx context.Context, id int64, in PostInput) error
	DeletePost(ctx context.Context, id int64) error
	Comments(ctx context.Context, postID int64) ([]Comment, error)
	Comment(ctx context.Context, id int64) (Comment, error)
	CreateComment(ctx context.Context, c Comment) (Comment, error)
	DeleteComment(ctx context.Context, id int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const postSelect = `
	SELECT p.id, p.title, p.content, p.author_id, u.username, p.created_at
	FROM posts p JOIN users u ON u.id = p.author_id`

const commentSelect = `
	SELECT c.id, c.post_id, c.author_id, u.username, c.content, c.created_at
	FROM comments c JOIN users u ON u.id = c.author_id`

func scanPost(row pgx.Row, p *Post) error {
	return row.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &p.AuthorName, &p.CreatedAt)
}

func scanComment(row pgx.Row, c *Comment) error {
	return row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.AuthorName, &c.Content, &c.CreatedAt)
}

// ListPosts returns every post, newest first.
func (r *PGRepository) ListPosts(ctx context.Context) ([]Post, error) {
	rows, err := r.pool.Query(ctx, postSelect+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("forum: list posts: %w", err)
	}
	defer rows.Close()
	posts := make([]Post, 0)
	for rows.Next() {
		var p Post
		if err := scanPost(rows, &p); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PGRepository) Post(ctx context.Context, id int64) (Post, error) {
	var p Post
	if err := scanPost(r.pool.QueryRow(ctx, postSelect+` WHERE p.id = $1`, id), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, ErrNotFound
		}
		return Post{}, err
	}
	return p, nil
}

// CreatePost inserts p and returns it with id, author name and timestamp.
func (r *PGRepository) CreatePost(ctx context.Context, p Post) (Post, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO posts (title, content, author_id) VALUES ($1, $2, $3)
		RETURNING id`, p.Title, p.Content, p.AuthorID).Scan(&id)
	if err != nil {
		return Post{}, fmt.Errorf("forum: insert post: %w", err)
	}
	return r.Post(ctx, id)
}

func (r *PGRepository) UpdatePost(ctx context.Context, id int64, in PostInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE posts SET title = $2, content = $3 WHERE id = $1`, id, in.Title, in.Content)
	if err != nil {
		return fmt.Errorf("forum: update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost removes the post; comments cascade.
func (r *PGRepository) DeletePost(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("forum: delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Comments returns a post's comments in creation order.
func (r *PGRepository) Comments(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, commentSelect+` WHERE c.post_id = $1 ORDER BY c.id`, postID)
	if err != nil {
		return nil, fmt.Errorf("forum: list comments: %w", err)
	}
	defer rows.Close()
	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := scanComment(rows, &c); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *PGRepository) Comment(ctx context.Context, id int64) (Comment, error) {
	var c Comment
	if err := scanComment(r.pool.QueryRow(ctx, commentSelect+` WHERE c.id = $1`, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Comment{}, ErrNotFound
		}
		return Comment{}, err
	}
	return c, nil
}

func (r *PGRepository) CreateComment(ctx context.Context, c Comment) (Comment, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comments (post_id, author_id, content) VALUES ($1, $2, $3)
		RETURNING id`, c.PostID, c.AuthorID, c.Content).Scan(&id)
	if err != nil {
		return Comment{}, fmt.Errorf("forum: insert comment: %w", err)
	}
	return r.Comment(ctx, id)
}

func (r *PGRepository) DeleteComment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("forum: delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
