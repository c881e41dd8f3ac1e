package forum

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finboard/finboard/internal/shared"
	"github.com/finboard/finboard/internal/view"
)

// Handler serves the board pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	pages     *view.Pages
	loginPath string
}

// NewHandler constructs a Handler. Anonymous users hitting protected pages
// are sent to loginPath.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Pages, loginPath string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, pages: pages, loginPath: loginPath}
}

// MountRoutes registers forum routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.index)
	r.Get("/{postID:[0-9]+}", h.detail)
	r.Group(func(r chi.Router) {
		r.Use(shared.RequireIdentity(h.loginPath))
		r.Get("/create", h.showCreate)
		r.Post("/create", h.handleCreate)
		r.Get("/{postID:[0-9]+}/update", h.showUpdate)
		r.Post("/{postID:[0-9]+}/update", h.handleUpdate)
		r.Post("/{postID:[0-9]+}/delete", h.handleDelete)
		r.Post("/{postID:[0-9]+}/comments", h.handleComment)
		r.Post("/{postID:[0-9]+}/comments/{commentID:[0-9]+}/delete", h.handleCommentDelete)
	})
}

type indexPageData struct {
	Posts []Post
}

type detailPageData struct {
	Post     Post
	Comments []Comment
	CanEdit  bool
}

type formPageData struct {
	Action string
	Form   PostInput
	Errors map[string]string
}

func detailPath(id int64) string {
	return "/" + strconv.FormatInt(id, 10)
}

func urlID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}

// NotFound renders the board 404 page.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusNotFound, "pages/not_found.html", "Not found", nil)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		h.NotFound(w, r)
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.Posts(r.Context())
	if err != nil {
		h.fail(w, r, "list posts", err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/posts_index.html", "Community", indexPageData{Posts: posts})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Detail(r.Context(), urlID(r, "postID"))
	if err != nil {
		h.fail(w, r, "load post", err)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	h.pages.Render(w, r, http.StatusOK, "pages/post_detail.html", detail.Post.Title, detailPageData{
		Post:     detail.Post,
		Comments: detail.Comments,
		CanEdit:  id.Owns(detail.Post.AuthorID),
	})
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, "pages/post_form.html", "New post", formPageData{Action: "/create"})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	form := PostInput{Title: r.PostFormValue("title"), Content: r.PostFormValue("content")}
	post, err := h.service.CreatePost(r.Context(), id, form)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.pages.Render(w, r, http.StatusBadRequest, "pages/post_form.html", "New post", formPageData{
				Action: "/create", Form: form, Errors: verr.Fields,
			})
			return
		}
		h.fail(w, r, "create post", err)
		return
	}
	h.logger.Info("post created", slog.Int64("post_id", post.ID), slog.Int64("author_id", id.UserID))
	view.Redirect(w, r, detailPath(post.ID), "", "")
}

func (h *Handler) showUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	postID := urlID(r, "postID")
	post, err := h.service.EditablePost(r.Context(), id, postID)
	switch {
	case errors.Is(err, ErrNotOwner):
		view.Redirect(w, r, detailPath(postID), "", "")
		return
	case err != nil:
		h.fail(w, r, "load post for update", err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/post_form.html", "Edit post", formPageData{
		Action: detailPath(postID) + "/update",
		Form:   PostInput{Title: post.Title, Content: post.Content},
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	postID := urlID(r, "postID")
	form := PostInput{Title: r.PostFormValue("title"), Content: r.PostFormValue("content")}
	err := h.service.UpdatePost(r.Context(), id, postID, form)
	var verr *ValidationError
	switch {
	case err == nil, errors.Is(err, ErrNotOwner):
		view.Redirect(w, r, detailPath(postID), "", "")
	case errors.As(err, &verr):
		h.pages.Render(w, r, http.StatusBadRequest, "pages/post_form.html", "Edit post", formPageData{
			Action: detailPath(postID) + "/update", Form: form, Errors: verr.Fields,
		})
	default:
		h.fail(w, r, "update post", err)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	postID := urlID(r, "postID")
	err := h.service.DeletePost(r.Context(), id, postID)
	switch {
	case err == nil:
		h.logger.Info("post deleted", slog.Int64("post_id", postID), slog.Int64("author_id", id.UserID))
		view.Redirect(w, r, "/", "info", "The post has been deleted.")
	case errors.Is(err, ErrNotOwner):
		view.Redirect(w, r, detailPath(postID), "", "")
	default:
		h.fail(w, r, "delete post", err)
	}
}

func (h *Handler) handleComment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	postID := urlID(r, "postID")
	_, err := h.service.AddComment(r.Context(), id, postID, CommentInput{Content: r.PostFormValue("content")})
	if err != nil && !errors.Is(err, ErrInvalidInput) {
		h.fail(w, r, "create comment", err)
		return
	}
	view.Redirect(w, r, detailPath(postID), "", "")
}

func (h *Handler) handleCommentDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	postID := urlID(r, "postID")
	err := h.service.DeleteComment(r.Context(), id, postID, urlID(r, "commentID"))
	if err != nil && !errors.Is(err, ErrNotOwner) {
		h.fail(w, r, "delete comment", err)
		return
	}
	view.Redirect(w, r, detailPath(postID), "", "")
}
