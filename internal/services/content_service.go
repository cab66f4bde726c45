package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/repositories"
)

const postIDPrefix = "post_"

var (
	// ErrContentInvalidInput signals the caller provided invalid data.
	ErrContentInvalidInput = errors.New("content: invalid input")
	// ErrContentNotFound indicates the post could not be located.
	ErrContentNotFound = errors.New("content: not found")
	// ErrContentConflict indicates a duplicate slug or concurrent modification.
	ErrContentConflict = errors.New("content: conflict")
)

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// ContentServiceDeps bundles collaborators required to construct the content service.
type ContentServiceDeps struct {
	Posts       repositories.PostRepository
	Clock       func() time.Time
	IDGenerator func() string
	// Sanitizer overrides the default UGC policy applied to post bodies.
	Sanitizer *bluemonday.Policy
}

type contentService struct {
	posts     repositories.PostRepository
	clock     func() time.Time
	newID     func() string
	sanitizer *bluemonday.Policy
}

// NewContentService wires dependencies into a concrete ContentService implementation.
func NewContentService(deps ContentServiceDeps) (ContentService, error) {
	if deps.Posts == nil {
		return nil, errors.New("content service: post repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = bluemonday.UGCPolicy()
	}

	return &contentService{
		posts:     deps.Posts,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		sanitizer: sanitizer,
	}, nil
}

func (s *contentService) CreatePost(ctx context.Context, cmd PostCreateCommand) (Post, error) {
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return Post{}, fmt.Errorf("%w: title is required", ErrContentInvalidInput)
	}
	body := strings.TrimSpace(cmd.Body)
	if body == "" {
		return Post{}, fmt.Errorf("%w: body is required", ErrContentInvalidInput)
	}

	slug := Slugify(cmd.Slug)
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		return Post{}, fmt.Errorf("%w: slug could not be derived", ErrContentInvalidInput)
	}

	if _, err := s.posts.FindBySlug(ctx, slug); err == nil {
		return Post{}, fmt.Errorf("%w: slug %s already exists", ErrContentConflict, slug)
	} else if !isRepoNotFound(err) {
		return Post{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	post := domain.Post{
		ID:         postIDPrefix + s.newID(),
		Title:      title,
		Slug:       slug,
		Body:       s.sanitizer.Sanitize(body),
		CategoryID: strings.TrimSpace(cmd.CategoryID),
		Tags:       normalizeTags(cmd.Tags),
		Published:  cmd.Published,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if cmd.Published {
		post.PublishedAt = &now
	}

	if err := s.posts.Insert(ctx, post); err != nil {
		return Post{}, s.mapRepositoryError(err)
	}
	return post, nil
}

func (s *contentService) UpdatePost(ctx context.Context, postID string, cmd PostUpdateCommand) (Post, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return Post{}, err
	}

	if cmd.Title != nil {
		title := strings.TrimSpace(*cmd.Title)
		if title == "" {
			return Post{}, fmt.Errorf("%w: title must not be empty", ErrContentInvalidInput)
		}
		post.Title = title
	}
	if cmd.Body != nil {
		body := strings.TrimSpace(*cmd.Body)
		if body == "" {
			return Post{}, fmt.Errorf("%w: body must not be empty", ErrContentInvalidInput)
		}
		post.Body = s.sanitizer.Sanitize(body)
	}
	if cmd.CategoryID != nil {
		post.CategoryID = strings.TrimSpace(*cmd.CategoryID)
	}
	if cmd.Tags != nil {
		post.Tags = normalizeTags(cmd.Tags)
	}

	now := s.clock()
	if cmd.Published != nil && *cmd.Published != post.Published {
		post.Published = *cmd.Published
		if post.Published {
			post.PublishedAt = &now
		} else {
			post.PublishedAt = nil
		}
	}
	post.UpdatedAt = now

	if err := s.posts.Update(ctx, post); err != nil {
		return Post{}, s.mapRepositoryError(err)
	}
	return post, nil
}

func (s *contentService) DeletePost(ctx context.Context, postID string) error {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return fmt.Errorf("%w: post id is required", ErrContentInvalidInput)
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *contentService) GetPost(ctx context.Context, postID string) (Post, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return Post{}, fmt.Errorf("%w: post id is required", ErrContentInvalidInput)
	}
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return Post{}, s.mapRepositoryError(err)
	}
	return post, nil
}

func (s *contentService) GetPostBySlug(ctx context.Context, slug string) (Post, error) {
	slug = Slugify(slug)
	if slug == "" {
		return Post{}, fmt.Errorf("%w: slug is required", ErrContentInvalidInput)
	}
	post, err := s.posts.FindBySlug(ctx, slug)
	if err != nil {
		return Post{}, s.mapRepositoryError(err)
	}
	return post, nil
}

func (s *contentService) ListPosts(ctx context.Context, query PostListQuery) (domain.CursorPage[Post], error) {
	page, err := s.posts.List(ctx, repositories.PostListFilter{
		PublishedOnly: query.PublishedOnly,
		CategoryID:    query.CategoryID,
		Pagination: domain.Pagination{
			PageSize:  query.Pagination.PageSize,
			PageToken: strings.TrimSpace(query.Pagination.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[Post]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Slugify lowercases the input and collapses every non-alphanumeric run
// into a single hyphen.
func Slugify(value string) string {
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	return strings.Trim(slug, "-")
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		normalized := Slugify(tag)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

func (s *contentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrContentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrContentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("content: repository unavailable: %w", err)
		}
	}

	return err
}
