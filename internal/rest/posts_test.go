package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dfryer1193/css3blog/api"
	"github.com/dfryer1193/css3blog/blog/application"
	"github.com/dfryer1193/css3blog/blog/persistence"
	"github.com/dfryer1193/css3blog/blog/storage"
	"github.com/dfryer1193/css3blog/shared/db/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRenderer struct {
	err error
}

func (s *stubRenderer) Render(ctx context.Context, markdown []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("<article>" + string(markdown) + "</article>"), nil
}

type testServer struct {
	engine    *gin.Engine
	renderer  *stubRenderer
	service   *application.PostService
	mediaRoot string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: filepath.Join(t.TempDir(), "rest.db")})
	require.NoError(t, database.Connect(context.Background()))
	t.Cleanup(func() { database.Close() })

	disk, err := storage.NewDiskStorage(t.TempDir())
	require.NoError(t, err)

	renderer := &stubRenderer{}
	service := application.NewPostService(persistence.NewPostRepository(database.DB()), disk, renderer, disk.Root())

	engine := gin.New()
	NewApi(engine, service, NewRouter())

	return &testServer{
		engine:    engine,
		renderer:  renderer,
		service:   service,
		mediaRoot: disk.Root(),
	}
}

type formFile struct {
	name    string
	content string
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, file *formFile) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, w.WriteField(key, value))
	}
	if file != nil {
		part, err := w.CreateFormFile("md_file", file.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(file.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.engine.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) create(t *testing.T, fields map[string]string, file *formFile) api.Post {
	t.Helper()
	rr := s.do(multipartRequest(t, http.MethodPost, "/posts/v1/", fields, file))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var post api.Post
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &post))
	return post
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error
}

func TestCreatePost(t *testing.T) {
	s := newTestServer(t)

	post := s.create(t, map[string]string{
		"title":    "Hello World",
		"body":     "# Hi\n\nFirst paragraph.",
		"pub_date": "2024-05-01T10:00:00Z",
	}, nil)

	assert.NotZero(t, post.ID)
	assert.Equal(t, "hello-world", post.Slug)
	assert.Equal(t, "First paragraph.", post.Snippet)
	assert.Equal(t, "no md_file", post.Filename)
	assert.Equal(t, fmt.Sprintf("/blog/hello-world/%d", post.ID), post.URL)
	assert.True(t, post.PubDate.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	html, err := os.ReadFile(filepath.Join(s.mediaRoot, "content", "BlogPost", "2024", "Hello World.html"))
	require.NoError(t, err)
	assert.Equal(t, "<article># Hi\n\nFirst paragraph.</article>", string(html))
}

func TestCreatePost_WithUpload(t *testing.T) {
	s := newTestServer(t)

	post := s.create(t, map[string]string{
		"title":    "From File",
		"pub_date": "2023-02-03T00:00:00Z",
	}, &formFile{name: "draft.md", content: "# Uploaded"})

	assert.Equal(t, "# Uploaded", post.Body)
	assert.Equal(t, "From File.md", post.Filename)
	assert.FileExists(t, filepath.Join(s.mediaRoot, "content", "BlogPost", "2023", "From File.md"))
}

func TestCreatePost_Errors(t *testing.T) {
	tests := []struct {
		name       string
		fields     map[string]string
		renderErr  error
		wantStatus int
	}{
		{
			name:       "Missing title",
			fields:     map[string]string{"body": "x"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Title too long",
			fields:     map[string]string{"title": string(bytes.Repeat([]byte("a"), 151)), "body": "x"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Title escaping the media root",
			fields:     map[string]string{"title": "../../../../escaped", "body": "# Hi"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Bad pub_date",
			fields:     map[string]string{"title": "Dated", "pub_date": "yesterday"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Rendering service down",
			fields:     map[string]string{"title": "Unlucky", "body": "x"},
			renderErr:  errors.New("connection refused"),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.renderer.err = tt.renderErr

			rr := s.do(multipartRequest(t, http.MethodPost, "/posts/v1/", tt.fields, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.NotEmpty(t, decodeError(t, rr))
		})
	}
}

func TestCreatePost_TitleEscapingMediaRoot(t *testing.T) {
	s := newTestServer(t)

	for _, file := range []*formFile{nil, {name: "x.md", content: "# Hi"}} {
		rr := s.do(multipartRequest(t, http.MethodPost, "/posts/v1/",
			map[string]string{"title": "../../../../escaped", "body": "# Hi"}, file))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeError(t, rr), "escapes the media root")
	}

	assert.NoFileExists(t, filepath.Join(filepath.Dir(s.mediaRoot), "escaped.html"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(s.mediaRoot), "escaped.md"))

	rr := s.do(httptest.NewRequest(http.MethodGet, "/posts/v1/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list api.PostList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Empty(t, list.Posts)
}

func TestGetPost(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, map[string]string{"title": "Readable", "body": "text"}, nil)

	rr := s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/posts/v1/%d", created.ID), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var post api.Post
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &post))
	assert.Equal(t, created.ID, post.ID)
	assert.Equal(t, "Readable", post.Title)
	assert.Equal(t, created.URL, post.URL)
}

func TestGetPost_Errors(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(httptest.NewRequest(http.MethodGet, "/posts/v1/999", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(httptest.NewRequest(http.MethodGet, "/posts/v1/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetPosts(t *testing.T) {
	s := newTestServer(t)
	for i := 1; i <= 3; i++ {
		s.create(t, map[string]string{
			"title":    fmt.Sprintf("Post %d", i),
			"body":     "x",
			"pub_date": fmt.Sprintf("2024-01-0%dT00:00:00Z", i),
		}, nil)
	}

	rr := s.do(httptest.NewRequest(http.MethodGet, "/posts/v1/?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var list api.PostList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Posts, 2)
	assert.Equal(t, "Post 3", list.Posts[0].Title)
	assert.Equal(t, "Post 2", list.Posts[1].Title)

	rr = s.do(httptest.NewRequest(http.MethodGet, "/posts/v1/?limit=2&offset=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Posts, 1)
	assert.Equal(t, "Post 1", list.Posts[0].Title)

	for _, query := range []string{"limit=0", "limit=abc", "offset=-1", "limit=1000"} {
		rr = s.do(httptest.NewRequest(http.MethodGet, "/posts/v1/?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestUpdatePost_RenameMovesHTML(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, map[string]string{
		"title":    "Old Name",
		"body":     "x",
		"pub_date": "2024-01-01T00:00:00Z",
	}, nil)
	oldHTML := filepath.Join(s.mediaRoot, "content", "BlogPost", "2024", "Old Name.html")
	require.FileExists(t, oldHTML)

	rr := s.do(multipartRequest(t, http.MethodPut, fmt.Sprintf("/posts/v1/%d", created.ID),
		map[string]string{"title": "New Name"}, nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var updated api.Post
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, "new-name", updated.Slug)
	assert.Equal(t, "x", updated.Body)
	assert.NoFileExists(t, oldHTML)
	assert.FileExists(t, filepath.Join(s.mediaRoot, "content", "BlogPost", "2024", "New Name.html"))
}

func TestUpdatePost_NotFound(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(multipartRequest(t, http.MethodPut, "/posts/v1/42", map[string]string{"title": "x"}, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeletePost(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, map[string]string{
		"title":    "Short Lived",
		"pub_date": "2024-01-01T00:00:00Z",
	}, &formFile{name: "a.md", content: "# Bye"})

	target := fmt.Sprintf("/posts/v1/%d", created.ID)
	rr := s.do(httptest.NewRequest(http.MethodDelete, target, nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	assert.NoFileExists(t, filepath.Join(s.mediaRoot, "content", "BlogPost", "2024", "Short Lived.md"))
	assert.NoFileExists(t, filepath.Join(s.mediaRoot, "content", "BlogPost", "2024", "Short Lived.html"))

	rr = s.do(httptest.NewRequest(http.MethodDelete, target, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServePost(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, map[string]string{"title": "Served Post", "body": "# Served"}, nil)

	rr := s.do(httptest.NewRequest(http.MethodGet, created.URL, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "<article># Served</article>", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
}

func TestServePost_StaleSlugRedirects(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, map[string]string{"title": "Canonical", "body": "x"}, nil)

	rr := s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/blog/old-slug/%d", created.ID), nil))
	assert.Equal(t, http.StatusMovedPermanently, rr.Code)
	assert.Equal(t, created.URL, rr.Header().Get("Location"))
}

func TestServePost_MissingHTML(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, map[string]string{
		"title":    "Vanished",
		"body":     "x",
		"pub_date": "2024-01-01T00:00:00Z",
	}, nil)
	require.NoError(t, os.Remove(filepath.Join(s.mediaRoot, "content", "BlogPost", "2024", "Vanished.html")))

	rr := s.do(httptest.NewRequest(http.MethodGet, created.URL, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
