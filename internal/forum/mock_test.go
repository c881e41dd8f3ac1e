package forum_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finboard/finboard/internal/forum"
)

// memRepo mimics the SQL repository, including cascades and server-assigned
// timestamps.
type memRepo struct {
	mu            sync.Mutex
	posts         map[int64]forum.Post
	comments      map[int64]forum.Comment
	nextPostID    int64
	nextCommentID int64
	clock         time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		posts:    make(map[int64]forum.Post),
		comments: make(map[int64]forum.Comment),
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func authorName(id int64) string {
	return map[int64]string{1: "alice", 2: "bob"}[id]
}

func (m *memRepo) ListPosts(ctx context.Context) ([]forum.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]forum.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memRepo) Post(ctx context.Context, id int64) (forum.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return forum.Post{}, forum.ErrNotFound
	}
	return p, nil
}

func (m *memRepo) CreatePost(ctx context.Context, p forum.Post) (forum.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPostID++
	p.ID = m.nextPostID
	p.AuthorName = authorName(p.AuthorID)
	p.CreatedAt = m.tick()
	m.posts[p.ID] = p
	return p, nil
}

func (m *memRepo) UpdatePost(ctx context.Context, id int64, in forum.PostInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return forum.ErrNotFound
	}
	p.Title, p.Content = in.Title, in.Content
	m.posts[id] = p
	return nil
}

func (m *memRepo) DeletePost(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return forum.ErrNotFound
	}
	delete(m.posts, id)
	for cid, c := range m.comments {
		if c.PostID == id {
			delete(m.comments, cid)
		}
	}
	return nil
}

func (m *memRepo) Comments(ctx context.Context, postID int64) ([]forum.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]forum.Comment, 0)
	for _, c := range m.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Comment(ctx context.Context, id int64) (forum.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return forum.Comment{}, forum.ErrNotFound
	}
	return c, nil
}

func (m *memRepo) CreateComment(ctx context.Context, c forum.Comment) (forum.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCommentID++
	c.ID = m.nextCommentID
	c.AuthorName = authorName(c.AuthorID)
	c.CreatedAt = m.tick()
	m.comments[c.ID] = c
	return c, nil
}

func (m *memRepo) DeleteComment(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return forum.ErrNotFound
	}
	delete(m.comments, id)
	return nil
}
