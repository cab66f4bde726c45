package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zenkart/admin-api/internal/platform/auth"
	"github.com/zenkart/admin-api/internal/platform/httpx"
	"github.com/zenkart/admin-api/internal/services"
)

// Post bodies carry full article HTML.
const maxPostBodySize = 256 * 1024

// PostHandlers exposes the blog post CRUD endpoints.
type PostHandlers struct {
	authn   *auth.Authenticator
	content services.ContentService
}

// NewPostHandlers constructs a new PostHandlers instance.
func NewPostHandlers(authn *auth.Authenticator, content services.ContentService) *PostHandlers {
	return &PostHandlers{authn: authn, content: content}
}

// Routes registers the /posts endpoints.
func (h *PostHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listPosts)
	r.Post("/", h.createPost)
	r.Get("/{postID}", h.getPost)
	r.Patch("/{postID}", h.updatePost)
	r.Delete("/{postID}", h.deletePost)
}

func (h *PostHandlers) listPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	query := r.URL.Query()

	if slug := strings.TrimSpace(query.Get("slug")); slug != "" {
		post, err := h.content.GetPostBySlug(ctx, slug)
		if err != nil {
			writeContentError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, postListResponse{Items: []postPayload{buildPostPayload(post)}})
		return
	}

	listQuery := services.PostListQuery{}
	if raw := strings.TrimSpace(query.Get("published_only")); raw != "" {
		publishedOnly, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "published_only must be a boolean", http.StatusBadRequest))
			return
		}
		listQuery.PublishedOnly = publishedOnly
	}
	if categoryID := strings.TrimSpace(query.Get("category_id")); categoryID != "" {
		listQuery.CategoryID = &categoryID
	}

	pager, err := parsePagination(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	listQuery.Pagination = pager

	page, err := h.content.ListPosts(ctx, listQuery)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}

	items := make([]postPayload, 0, len(page.Items))
	for _, post := range page.Items {
		items = append(items, buildPostPayload(post))
	}
	writeJSONResponse(w, http.StatusOK, postListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type postCreateRequest struct {
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	Body       string   `json:"body"`
	CategoryID string   `json:"category_id"`
	Tags       []string `json:"tags"`
	Published  bool     `json:"published"`
}

func (h *PostHandlers) createPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	var req postCreateRequest
	if err := decodeJSONBody(r, maxPostBodySize, &req); err != nil {
		writeContentBodyError(ctx, w, err)
		return
	}

	post, err := h.content.CreatePost(ctx, services.PostCreateCommand{
		Title:      req.Title,
		Slug:       req.Slug,
		Body:       req.Body,
		CategoryID: req.CategoryID,
		Tags:       req.Tags,
		Published:  req.Published,
	})
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, postResponse{Post: buildPostPayload(post)})
}

func (h *PostHandlers) getPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	postID := strings.TrimSpace(chi.URLParam(r, "postID"))
	if postID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "post id is required", http.StatusBadRequest))
		return
	}

	post, err := h.content.GetPost(ctx, postID)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, postResponse{Post: buildPostPayload(post)})
}

type postUpdateRequest struct {
	Title      *string  `json:"title"`
	Body       *string  `json:"body"`
	CategoryID *string  `json:"category_id"`
	Tags       []string `json:"tags"`
	Published  *bool    `json:"published"`
}

func (h *PostHandlers) updatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	postID := strings.TrimSpace(chi.URLParam(r, "postID"))
	if postID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "post id is required", http.StatusBadRequest))
		return
	}

	var req postUpdateRequest
	if err := decodeJSONBody(r, maxPostBodySize, &req); err != nil {
		writeContentBodyError(ctx, w, err)
		return
	}

	post, err := h.content.UpdatePost(ctx, postID, services.PostUpdateCommand{
		Title:      req.Title,
		Body:       req.Body,
		CategoryID: req.CategoryID,
		Tags:       req.Tags,
		Published:  req.Published,
	})
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, postResponse{Post: buildPostPayload(post)})
}

func (h *PostHandlers) deletePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	postID := strings.TrimSpace(chi.URLParam(r, "postID"))
	if postID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "post id is required", http.StatusBadRequest))
		return
	}

	if err := h.content.DeletePost(ctx, postID); err != nil {
		writeContentError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postListResponse struct {
	Items         []postPayload `json:"items"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type postResponse struct {
	Post postPayload `json:"post"`
}

type postPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Body        string   `json:"body"`
	CategoryID  string   `json:"category_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Published   bool     `json:"published"`
	PublishedAt string   `json:"published_at,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func buildPostPayload(post services.Post) postPayload {
	return postPayload{
		ID:          post.ID,
		Title:       post.Title,
		Slug:        post.Slug,
		Body:        post.Body,
		CategoryID:  post.CategoryID,
		Tags:        post.Tags,
		Published:   post.Published,
		PublishedAt: formatTimePointer(post.PublishedAt),
		CreatedAt:   formatTime(post.CreatedAt),
		UpdatedAt:   formatTime(post.UpdatedAt),
	}
}

func writeContentUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("content_service_unavailable", "content service unavailable", http.StatusServiceUnavailable))
}

func writeContentBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
	}
}

func writeContentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrContentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrContentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("post_not_found", "post not found", http.StatusNotFound))
	case errors.Is(err, services.ErrContentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("post_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
