package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dfryer1193/css3blog/blog/domain"
	"github.com/dfryer1193/css3blog/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// PostService manages the lifecycle of blog posts: deriving the slug, rendering the body
// to an HTML file and cleaning up files when a post is removed.
type PostService struct {
	repo      domain.PostRepository
	storage   domain.FileStorage
	markdown  domain.MarkdownRenderer
	mediaRoot string

	now     func() time.Time
	metrics *metrics.Manager
}

type Option func(*PostService)

// WithClock replaces time.Now, used for default timestamps
func WithClock(now func() time.Time) Option {
	return func(s *PostService) {
		s.now = now
	}
}

func WithMetrics(m *metrics.Manager) Option {
	return func(s *PostService) {
		s.metrics = m
	}
}

func NewPostService(
	repo domain.PostRepository,
	storage domain.FileStorage,
	markdown domain.MarkdownRenderer,
	mediaRoot string,
	opts ...Option,
) *PostService {
	s := &PostService{
		repo:      repo,
		storage:   storage,
		markdown:  markdown,
		mediaRoot: mediaRoot,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = metrics.NewManager("css3blog", "blog", prometheus.NewRegistry())
	}

	return s
}

// NewPost creates an unsaved post with both timestamps set to the current time
func (s *PostService) NewPost(title, body string) *domain.BlogPost {
	return domain.NewBlogPost(title, body, s.now())
}

// Save stores the upload (if any), derives the slug, renders the body to HTMLPath and
// persists the post. Posts with ID 0 are inserted, others updated.
func (s *PostService) Save(ctx context.Context, p *domain.BlogPost, upload *domain.Upload) (err error) {
	if p == nil {
		return fmt.Errorf("post cannot be nil")
	}

	if err := p.Validate(); err != nil {
		return err
	}

	now := s.now()
	if p.PubDate.IsZero() {
		p.PubDate = now
	}
	if p.LastEditDate.IsZero() {
		p.LastEditDate = now
	}

	htmlPath := p.RenderedHTMLPath(s.mediaRoot)
	if !domain.WithinRoot(s.mediaRoot, htmlPath) {
		return fmt.Errorf("%w: title %q", domain.ErrPathEscapesRoot, p.Title)
	}

	previousMDFile := p.MDFile
	if upload != nil {
		key := p.UploadKey()
		if err := s.storage.Save(ctx, key, upload.Content); err != nil {
			return fmt.Errorf("failed to store markdown upload %s: %w", upload.Filename, err)
		}
		p.MDFile = key

		// a new key holds nothing worth keeping once the save fails
		if key != previousMDFile {
			defer func() {
				if err != nil {
					s.discardUpload(ctx, key)
					p.MDFile = previousMDFile
				}
			}()
		}
	}

	p.Slug = domain.Slugify(p.Title)

	if p.Body == "" && p.MDFile != "" {
		body, err := s.readUpload(ctx, p.MDFile)
		if err != nil {
			return err
		}
		p.Body = body
	}

	html, err := s.render(ctx, DecodeBody(p.Body))
	if err != nil {
		return fmt.Errorf("failed to render post %q: %w", p.Title, err)
	}

	if err := writeHTML(htmlPath, html); err != nil {
		return err
	}

	previousHTMLPath := p.HTMLPath
	p.HTMLPath = htmlPath

	if p.ID == 0 {
		err = s.repo.CreatePost(ctx, p)
	} else {
		err = s.repo.UpdatePost(ctx, p)
	}
	if err != nil {
		log.Error().Err(err).Int64("postID", p.ID).Str("htmlPath", p.HTMLPath).Msg("Failed to persist rendered post")
		if htmlPath != previousHTMLPath {
			if rmErr := s.removeHTML(htmlPath); rmErr != nil {
				log.Warn().Err(rmErr).Str("path", htmlPath).Msg("Failed to remove rendered post of unsaved post")
			}
		}
		p.HTMLPath = previousHTMLPath
		return fmt.Errorf("failed to persist post: %w", err)
	}

	if previousHTMLPath != "" && previousHTMLPath != p.HTMLPath {
		if err := s.removeHTML(previousHTMLPath); err != nil {
			log.Warn().Err(err).Str("path", previousHTMLPath).Msg("Failed to remove stale rendered post")
		}
	}

	if previousMDFile != "" && previousMDFile != p.MDFile {
		if err := s.storage.Delete(ctx, previousMDFile); err != nil {
			log.Warn().Err(err).Str("key", previousMDFile).Msg("Failed to remove replaced markdown upload")
		}
	}

	s.metrics.CounterPostsSaved.Inc()
	log.Info().Int64("postID", p.ID).Str("slug", p.Slug).Msg("Post saved")

	return nil
}

func (s *PostService) discardUpload(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to remove upload of unsaved post")
	}
}

func (s *PostService) readUpload(ctx context.Context, key string) (string, error) {
	rc, err := s.storage.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to open markdown upload: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown upload: %w", err)
	}

	return string(content), nil
}

func (s *PostService) render(ctx context.Context, markdown string) ([]byte, error) {
	start := time.Now()
	html, err := s.markdown.Render(ctx, []byte(markdown))
	s.metrics.HistRenderDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.CounterRenderFailures.Inc()
		return nil, fmt.Errorf("%w: %w", domain.ErrRenderFailed, err)
	}

	return html, nil
}

// Delete removes the uploaded markdown, the rendered HTML and finally the record
func (s *PostService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeletePost(ctx, id, s.removeFiles); err != nil {
		return fmt.Errorf("failed to delete post %d: %w", id, err)
	}

	s.metrics.CounterPostsDeleted.Inc()
	log.Info().Int64("postID", id).Msg("Post deleted")

	return nil
}

// removeFiles is the pre-delete hook. Files that are already gone are skipped.
func (s *PostService) removeFiles(ctx context.Context, p *domain.BlogPost) error {
	if p.MDFile != "" {
		if err := s.storage.Delete(ctx, p.MDFile); err != nil {
			return fmt.Errorf("failed to delete markdown upload: %w", err)
		}
	}

	if err := s.removeHTML(s.htmlPath(p)); err != nil {
		return fmt.Errorf("failed to delete rendered post: %w", err)
	}

	return nil
}

func (s *PostService) Get(ctx context.Context, id int64) (*domain.BlogPost, error) {
	return s.repo.GetPost(ctx, id)
}

// List returns posts newest first
func (s *PostService) List(ctx context.Context, limit, offset int) ([]*domain.BlogPost, error) {
	return s.repo.ListPosts(ctx, limit, offset)
}

// RenderedHTML returns the path of the rendered HTML file for a post
func (s *PostService) RenderedHTML(ctx context.Context, p *domain.BlogPost) (string, error) {
	htmlPath := s.htmlPath(p)
	if _, err := os.Stat(htmlPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", domain.ErrFileNotFound, htmlPath)
		}
		return "", fmt.Errorf("failed to stat rendered post: %w", err)
	}
	return htmlPath, nil
}

// htmlPath prefers the persisted path; older rows without one fall back to recomputing it
func (s *PostService) htmlPath(p *domain.BlogPost) string {
	if p.HTMLPath != "" {
		return p.HTMLPath
	}
	return p.RenderedHTMLPath(s.mediaRoot)
}

func writeHTML(path string, html []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create rendered post directory: %w", err)
	}

	if err := os.WriteFile(path, html, 0644); err != nil {
		return fmt.Errorf("failed to write rendered post: %w", err)
	}

	return nil
}

// removeHTML deletes a rendered file. Paths outside the media root are never touched.
func (s *PostService) removeHTML(path string) error {
	if !domain.WithinRoot(s.mediaRoot, path) {
		log.Warn().Str("path", path).Msg("Refusing to remove file outside the media root")
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
