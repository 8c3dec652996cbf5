package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/store"
)

const (
	blogPostsKey      = "blog:posts"
	blogExcerptLength = 180
)

// ErrPostNotFound indicates no post with the requested slug.
var ErrPostNotFound = errors.New("blog post not found")

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// BlogService manages the published article list.
type BlogService interface {
	List(ctx context.Context) ([]dto.BlogPost, error)
	Get(ctx context.Context, slug string) (dto.BlogPost, error)
	Create(ctx context.Context, author string, payload dto.BlogPostCreateRequest) (dto.BlogPost, error)
	Delete(ctx context.Context, slug string) error
}

type blogService struct {
	store     store.Store
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	stripper  *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBlogService constructs a blog service over the key/value store.
func NewBlogService(kv store.Store, validate *validator.Validate, logger zerolog.Logger) BlogService {
	return &blogService{
		store:     kv,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		stripper:  bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "blog_service").Logger(),
		now:       time.Now,
	}
}

func (s *blogService) List(ctx context.Context) ([]dto.BlogPost, error) {
	posts, err := store.Ensure(ctx, s.store, blogPostsKey, []dto.BlogPost{})
	if err != nil {
		return nil, fmt.Errorf("load blog posts: %w", err)
	}
	if posts == nil {
		posts = []dto.BlogPost{}
	}
	return posts, nil
}

func (s *blogService) Get(ctx context.Context, slug string) (dto.BlogPost, error) {
	posts, err := s.List(ctx)
	if err != nil {
		return dto.BlogPost{}, err
	}
	for _, post := range posts {
		if post.Slug == slug {
			return post, nil
		}
	}
	return dto.BlogPost{}, ErrPostNotFound
}

func (s *blogService) Create(ctx context.Context, author string, payload dto.BlogPostCreateRequest) (dto.BlogPost, error) {
	payload.Title = strings.TrimSpace(payload.Title)
	payload.Excerpt = strings.TrimSpace(payload.Excerpt)
	if err := s.validator.Struct(payload); err != nil {
		return dto.BlogPost{}, err
	}

	body := strings.TrimSpace(s.sanitizer.Sanitize(payload.Body))
	excerpt := s.stripper.Sanitize(payload.Excerpt)
	if excerpt == "" {
		excerpt = buildExcerpt(s.stripper.Sanitize(body))
	}

	tags := make([]string, 0, len(payload.Tags))
	for _, tag := range payload.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	var created dto.BlogPost
	_, err := store.Mutate(ctx, s.store, blogPostsKey, []dto.BlogPost{}, func(posts *[]dto.BlogPost) error {
		created = dto.BlogPost{
			Slug:        uniqueSlug(slugify(payload.Title), *posts),
			Title:       s.stripper.Sanitize(payload.Title),
			Excerpt:     excerpt,
			Body:        body,
			Author:      author,
			Tags:        tags,
			PublishedAt: s.now().UTC(),
		}
		// newest first
		*posts = append([]dto.BlogPost{created}, *posts...)
		return nil
	})
	if err != nil {
		return dto.BlogPost{}, fmt.Errorf("create blog post: %w", err)
	}

	s.logger.Info().Str("slug", created.Slug).Str("author", author).Msg("blog post published")
	return created, nil
}

func (s *blogService) Delete(ctx context.Context, slug string) error {
	_, err := store.Mutate(ctx, s.store, blogPostsKey, []dto.BlogPost{}, func(posts *[]dto.BlogPost) error {
		for i, post := range *posts {
			if post.Slug == slug {
				*posts = append((*posts)[:i], (*posts)[i+1:]...)
				return nil
			}
		}
		return ErrPostNotFound
	})
	if errors.Is(err, ErrPostNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("delete blog post: %w", err)
	}
	return nil
}

func slugify(title string) string {
	slug := strings.Trim(slugInvalidChars.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		return "post"
	}
	return slug
}

func uniqueSlug(base string, posts []dto.BlogPost) string {
	taken := make(map[string]struct{}, len(posts))
	for _, post := range posts {
		taken[post.Slug] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "-" + strconv.Itoa(i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

func buildExcerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= blogExcerptLength {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:blogExcerptLength])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
