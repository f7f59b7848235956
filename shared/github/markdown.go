package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dfryer1193/css3blog/blog/domain"
	"github.com/google/go-github/v75/github"
)

var _ domain.MarkdownRenderer = (*MarkdownClient)(nil)

const rawMarkdownPath = "markdown/raw"

// MarkdownClient renders markdown through the GitHub REST API (or any server exposing
// the same POST /markdown/raw endpoint).
type MarkdownClient struct {
	client *github.Client
}

// NewMarkdownClient wraps client. baseURL overrides the API host when not empty;
// token, when set, authenticates the requests.
func NewMarkdownClient(httpClient *http.Client, baseURL string, token string) (*MarkdownClient, error) {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("github: invalid base URL %q: %w", baseURL, err)
		}
		client.BaseURL = u
	}

	return &MarkdownClient{client: client}, nil
}

// Render posts the markdown as text/plain and returns the HTML body.
// Non-2xx responses are returned as errors instead of being treated as HTML.
func (m *MarkdownClient) Render(ctx context.Context, markdown []byte) ([]byte, error) {
	op := "rendering raw markdown"

	u, err := m.client.BaseURL.Parse(rawMarkdownPath)
	if err != nil {
		return nil, fmt.Errorf("github: %s failed to build URL: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(markdown))
	if err != nil {
		return nil, fmt.Errorf("github: %s failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "text/html")

	var buf bytes.Buffer
	if _, err := m.client.Do(ctx, req, &buf); err != nil {
		return nil, handleGithubError(op, err)
	}

	return buf.Bytes(), nil
}

// handleGithubError inspects an error from the go-github client and returns a more informative, structured error.
func handleGithubError(op string, err error) error {
	if err == nil {
		return nil
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return fmt.Errorf("github: %s failed with status %d: %s: %w", op, errResp.Response.StatusCode, errResp.Message, err)
	}

	return fmt.Errorf("github: %s failed: %w", op, err)
}
