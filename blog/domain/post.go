package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxTitleLength is the maximum number of characters in a post title
	MaxTitleLength = 150

	// NoMDFile is returned by Filename when no markdown file is attached
	NoMDFile = "no md_file"

	// RouteBlogPost is the name of the route serving a rendered post
	RouteBlogPost = "blogpost"

	uploadDir = "content/BlogPost"
)

var (
	ErrPostNotFound  = errors.New("post not found")
	ErrTitleRequired = errors.New("post title is required")
	ErrTitleTooLong  = fmt.Errorf("post title exceeds %d characters", MaxTitleLength)
	ErrRenderFailed  = errors.New("markdown rendering failed")
	ErrFileNotFound  = errors.New("file not found")

	ErrPathEscapesRoot = errors.New("path escapes the media root")
)

// BlogPost represents a blog post.
// The body is rendered to an HTML file stored at HTMLPath, which is persisted
// together with the record so any process can find it again.
type BlogPost struct {
	ID           int64
	Title        string
	Body         string
	MDFile       string
	PubDate      time.Time
	LastEditDate time.Time
	Slug         string
	HTMLPath     string
}

// NewBlogPost creates a post whose timestamps default to now
func NewBlogPost(title, body string, now time.Time) *BlogPost {
	return &BlogPost{
		Title:        title,
		Body:         body,
		PubDate:      now,
		LastEditDate: now,
	}
}

func (p *BlogPost) String() string {
	return p.Title
}

// Validate checks the field constraints enforced by the persistence layer
func (p *BlogPost) Validate() error {
	if p.Title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(p.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// Filename returns the base name of the uploaded markdown file
func (p *BlogPost) Filename() string {
	if p.MDFile == "" {
		return NoMDFile
	}
	return path.Base(p.MDFile)
}

// UploadKey is the storage key of the markdown upload, always under the publication year.
// Titles are not sanitized.
func (p *BlogPost) UploadKey() string {
	return fmt.Sprintf("%s/%d/%s", uploadDir, p.PubDate.Year(), p.Title+".md")
}

// RenderedHTMLPath computes where the rendered HTML lives below mediaRoot
func (p *BlogPost) RenderedHTMLPath(mediaRoot string) string {
	rel := fmt.Sprintf("%s/%d/%s", uploadDir, p.PubDate.Year(), p.Title+".html")
	return filepath.Join(mediaRoot, filepath.FromSlash(rel))
}

// WithinRoot reports whether p is root itself or lies below it
func WithinRoot(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// AbsoluteURL resolves the canonical URL of the post
func (p *BlogPost) AbsoluteURL(resolver URLResolver) (string, error) {
	return resolver.Reverse(RouteBlogPost, map[string]string{
		"slug": p.Slug,
		"id":   fmt.Sprint(p.ID),
	})
}

// Upload is a markdown file submitted along with a post
type Upload struct {
	Filename string
	Content  io.Reader
}

// PreDeleteHook runs against a post right before its record is removed.
// Returning an error aborts the deletion.
type PreDeleteHook func(ctx context.Context, p *BlogPost) error

type PostRepository interface {
	CreatePost(ctx context.Context, p *BlogPost) error
	UpdatePost(ctx context.Context, p *BlogPost) error
	GetPost(ctx context.Context, id int64) (*BlogPost, error)
	ListPosts(ctx context.Context, limit int, offset int) ([]*BlogPost, error)
	DeletePost(ctx context.Context, id int64, hook PreDeleteHook) error
}

// FileStorage stores uploaded files under slash separated keys
type FileStorage interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MarkdownRenderer converts markdown text to HTML
type MarkdownRenderer interface {
	Render(ctx context.Context, markdown []byte) ([]byte, error)
}

// URLResolver builds URLs from named routes
type URLResolver interface {
	Reverse(name string, params map[string]string) (string, error)
}
