package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dfryer1193/css3blog/api"
	"github.com/dfryer1193/css3blog/blog/application"
	"github.com/dfryer1193/css3blog/blog/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

var errBadRequest = errors.New("bad request")

func (a *Api) GetPosts(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	if limit < 1 || limit > maxLimit || offset < 0 {
		respondError(c, fmt.Errorf("%w: limit must be in [1, %d] and offset not negative", errBadRequest, maxLimit))
		return
	}

	posts, err := a.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	list := api.PostList{
		Posts:  make([]api.Post, 0, len(posts)),
		Limit:  limit,
		Offset: offset,
	}
	for _, p := range posts {
		list.Posts = append(list.Posts, a.toAPIPost(p))
	}

	c.JSON(http.StatusOK, list)
}

func (a *Api) GetPost(c *gin.Context) {
	p, ok := a.loadPost(c, "postId")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, a.toAPIPost(p))
}

// CreatePost accepts a multipart form with title, body, pub_date and an optional md_file
func (a *Api) CreatePost(c *gin.Context) {
	p := a.service.NewPost(c.PostForm("title"), c.PostForm("body"))
	if err := applyPubDate(c, p); err != nil {
		respondError(c, err)
		return
	}

	a.save(c, p, http.StatusCreated)
}

// UpdatePost changes only the fields present in the form. LastEditDate is left as stored.
func (a *Api) UpdatePost(c *gin.Context) {
	p, ok := a.loadPost(c, "postId")
	if !ok {
		return
	}

	if title, ok := c.GetPostForm("title"); ok {
		p.Title = title
	}
	if body, ok := c.GetPostForm("body"); ok {
		p.Body = body
	}
	if err := applyPubDate(c, p); err != nil {
		respondError(c, err)
		return
	}

	a.save(c, p, http.StatusOK)
}

func (a *Api) DeletePost(c *gin.Context) {
	id, err := parseID(c.Param("postId"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := a.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ServePost serves the rendered HTML of a post. Outdated slugs redirect to the canonical URL.
func (a *Api) ServePost(c *gin.Context) {
	p, ok := a.loadPost(c, "id")
	if !ok {
		return
	}

	if c.Param("slug") != p.Slug {
		canonical, err := p.AbsoluteURL(a.router)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Redirect(http.StatusMovedPermanently, canonical)
		return
	}

	htmlPath, err := a.service.RenderedHTML(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}

	c.File(htmlPath)
}

func (a *Api) save(c *gin.Context, p *domain.BlogPost, status int) {
	upload, closeUpload, err := formUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer closeUpload()

	if err := a.service.Save(c.Request.Context(), p, upload); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(status, a.toAPIPost(p))
}

func (a *Api) loadPost(c *gin.Context, param string) (*domain.BlogPost, bool) {
	id, err := parseID(c.Param(param))
	if err != nil {
		respondError(c, err)
		return nil, false
	}

	p, err := a.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}

	return p, true
}

func (a *Api) toAPIPost(p *domain.BlogPost) api.Post {
	url, err := p.AbsoluteURL(a.router)
	if err != nil {
		log.Warn().Err(err).Int64("postID", p.ID).Msg("Failed to resolve post URL")
	}

	return api.Post{
		ID:           p.ID,
		Title:        p.Title,
		Slug:         p.Slug,
		Body:         p.Body,
		Snippet:      application.ExtractSnippet([]byte(application.DecodeBody(p.Body))),
		Filename:     p.Filename(),
		URL:          url,
		PubDate:      p.PubDate,
		LastEditDate: p.LastEditDate,
	}
}

// formUpload returns the md_file part of the form, or nil when none was sent
func formUpload(c *gin.Context) (*domain.Upload, func(), error) {
	noop := func() {}

	header, err := c.FormFile("md_file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, fmt.Errorf("%w: %w", errBadRequest, err)
	}

	f, err := header.Open()
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open md_file: %w", err)
	}

	return &domain.Upload{Filename: header.Filename, Content: f}, func() { f.Close() }, nil
}

func applyPubDate(c *gin.Context, p *domain.BlogPost) error {
	raw := c.PostForm("pub_date")
	if raw == "" {
		return nil
	}

	pubDate, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("%w: pub_date must be RFC3339: %w", errBadRequest, err)
	}
	p.PubDate = pubDate
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid post id %q", errBadRequest, raw)
	}
	return id, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, key)
	}
	return value, nil
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrTitleRequired),
		errors.Is(err, domain.ErrTitleTooLong),
		errors.Is(err, domain.ErrPathEscapesRoot):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPostNotFound),
		errors.Is(err, domain.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRenderFailed):
		status = http.StatusBadGateway
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		message = http.StatusText(status)
	}

	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: message})
}
