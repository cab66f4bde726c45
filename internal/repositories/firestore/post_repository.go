package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/zenkart/admin-api/internal/domain"
	pfirestore "github.com/zenkart/admin-api/internal/platform/firestore"
	"github.com/zenkart/admin-api/internal/repositories"
)

const postsCollection = "posts"

// PostRepository stores blog posts managed through the dashboard.
type PostRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Post]
}

// NewPostRepository constructs a Firestore-backed post repository.
func NewPostRepository(provider *pfirestore.Provider) (*PostRepository, error) {
	if provider == nil {
		return nil, errors.New("post repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.Post) (any, error) {
		return encodePostDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.Post, error) {
		var doc postDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Post{}, err
		}
		return doc.toDomain(snap.Ref.ID), nil
	}

	base := pfirestore.NewBaseRepository[domain.Post](provider, postsCollection, encoder, decoder)
	return &PostRepository{provider: provider, base: base}, nil
}

// Insert stores a new post document.
func (r *PostRepository) Insert(ctx context.Context, post domain.Post) error {
	if r == nil || r.base == nil {
		return errors.New("post repository not initialised")
	}
	post.ID = strings.TrimSpace(post.ID)
	if post.ID == "" {
		return errors.New("post repository: id is required")
	}
	_, err := r.base.Set(ctx, post.ID, post)
	return err
}

// Update overwrites an existing post document.
func (r *PostRepository) Update(ctx context.Context, post domain.Post) error {
	return r.Insert(ctx, post)
}

// Delete removes the post document.
func (r *PostRepository) Delete(ctx context.Context, postID string) error {
	if r == nil || r.provider == nil {
		return errors.New("post repository not initialised")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return errors.New("post repository: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("post.delete", err)
	}
	if _, err := client.Collection(postsCollection).Doc(postID).Delete(ctx); err != nil {
		return pfirestore.WrapError("post.delete", err)
	}
	return nil
}

// FindByID fetches a post by document id.
func (r *PostRepository) FindByID(ctx context.Context, postID string) (domain.Post, error) {
	if r == nil || r.base == nil {
		return domain.Post{}, errors.New("post repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(postID))
	if err != nil {
		return domain.Post{}, err
	}
	return doc.Data, nil
}

// FindBySlug fetches the post matching the slug.
func (r *PostRepository) FindBySlug(ctx context.Context, slug string) (domain.Post, error) {
	if r == nil || r.base == nil {
		return domain.Post{}, errors.New("post repository not initialised")
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return domain.Post{}, pfirestore.WrapError("post.findBySlug", status.Error(codes.NotFound, "slug is required"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", slug).Limit(1)
	})
	if err != nil {
		return domain.Post{}, err
	}
	if len(docs) == 0 {
		return domain.Post{}, pfirestore.WrapError("post.findBySlug", status.Error(codes.NotFound, "post not found"))
	}
	return docs[0].Data, nil
}

// List returns posts ordered by creation time, newest first.
func (r *PostRepository) List(ctx context.Context, filter repositories.PostListFilter) (domain.CursorPage[domain.Post], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Post]{}, errors.New("post repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var startAfter *time.Time
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Post]{}, pfirestore.WrapError("post.list", err)
		}
		startAfter = &decoded.CreatedAt
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.PublishedOnly {
			q = q.Where("published", "==", true)
		}
		if filter.CategoryID != nil {
			q = q.Where("categoryId", "==", strings.TrimSpace(*filter.CategoryID))
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if startAfter != nil {
			q = q.StartAfter(*startAfter)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Post]{}, err
	}

	posts := make([]domain.Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, doc.Data)
	}

	hasMore := len(posts) > pageSize
	if hasMore {
		posts = posts[:pageSize]
	}
	var nextToken string
	if hasMore && len(posts) > 0 {
		encoded, err := encodeOrderPageToken(orderPageToken{CreatedAt: posts[len(posts)-1].CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Post]{}, pfirestore.WrapError("post.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Post]{Items: posts, NextPageToken: nextToken}, nil
}

type postDocument struct {
	Title       string     `firestore:"title"`
	Slug        string     `firestore:"slug"`
	Body        string     `firestore:"body"`
	CategoryID  string     `firestore:"categoryId"`
	Tags        []string   `firestore:"tags"`
	Published   bool       `firestore:"published"`
	PublishedAt *time.Time `firestore:"publishedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func encodePostDocument(post domain.Post) postDocument {
	return postDocument{
		Title:       strings.TrimSpace(post.Title),
		Slug:        strings.ToLower(strings.TrimSpace(post.Slug)),
		Body:        post.Body,
		CategoryID:  strings.TrimSpace(post.CategoryID),
		Tags:        post.Tags,
		Published:   post.Published,
		PublishedAt: post.PublishedAt,
		CreatedAt:   post.CreatedAt.UTC(),
		UpdatedAt:   post.UpdatedAt.UTC(),
	}
}

func (d postDocument) toDomain(id string) domain.Post {
	return domain.Post{
		ID:          id,
		Title:       d.Title,
		Slug:        d.Slug,
		Body:        d.Body,
		CategoryID:  d.CategoryID,
		Tags:        d.Tags,
		Published:   d.Published,
		PublishedAt: d.PublishedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.PostRepository = (*PostRepository)(nil)
