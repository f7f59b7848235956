package application

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dfryer1193/css3blog/blog/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var _ domain.MarkdownRenderer = (*GoldmarkRenderer)(nil)

const maxSnippetLength = 200

type relativeLinkTransformer struct {
	siteURL string
}

// Transform points relative images at the media directory and relative links at sibling posts
func (t *relativeLinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.Image:
			if isRelativeLink(string(v.Destination)) {
				v.Destination = []byte(t.siteURL + "/media/images/" + path.Base(string(v.Destination)))
			}
		case *ast.Link:
			if isRelativeLink(string(v.Destination)) {
				dest := path.Base(string(v.Destination))
				dest = strings.TrimSuffix(dest, ".md")
				dest = strings.TrimSuffix(dest, ".html")
				v.Destination = []byte(t.siteURL + "/" + dest)
			}
		}

		return ast.WalkContinue, nil
	})
}

func isRelativeLink(dest string) bool {
	if strings.HasPrefix(dest, "/") {
		return !strings.HasPrefix(dest, "//")
	}

	if strings.HasPrefix(dest, "./") || strings.HasPrefix(dest, "../") {
		return true
	}

	if strings.HasPrefix(dest, "#") || strings.Contains(dest, ":") {
		return false
	}

	return true
}

// GoldmarkRenderer renders GitHub flavoured markdown in process.
// It is the offline alternative to the GitHub markdown API.
type GoldmarkRenderer struct {
	renderer goldmark.Markdown
}

// NewGoldmarkRenderer builds a renderer. When siteURL is set, relative links and images
// are rewritten to absolute URLs under it.
func NewGoldmarkRenderer(siteURL string) *GoldmarkRenderer {
	parserOpts := []parser.Option{parser.WithAutoHeadingID()}
	if siteURL != "" {
		parserOpts = append(parserOpts, parser.WithASTTransformers(
			util.Prioritized(&relativeLinkTransformer{siteURL: strings.TrimSuffix(siteURL, "/")}, 100),
		))
	}

	renderer := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
		),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			html.WithUnsafe(),
		),
	)

	return &GoldmarkRenderer{
		renderer: renderer,
	}
}

func (r *GoldmarkRenderer) Render(ctx context.Context, markdown []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := r.renderer.Convert(markdown, &buf); err != nil {
		return nil, fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}

	return buf.Bytes(), nil
}

// ExtractSnippet returns the first paragraph of the markdown, truncated at a word boundary
func ExtractSnippet(markdown []byte) string {
	lines := strings.Split(string(markdown), "\n")
	var paragraphLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// headings before the first paragraph are skipped
		if strings.HasPrefix(trimmed, "#") {
			if len(paragraphLines) > 0 {
				break
			}
			continue
		}

		if trimmed == "" {
			if len(paragraphLines) > 0 {
				break
			}
			continue
		}

		// code blocks, rules, lists and tables end the paragraph
		if strings.HasPrefix(trimmed, "```") ||
			strings.HasPrefix(trimmed, "---") ||
			strings.HasPrefix(trimmed, "***") ||
			strings.HasPrefix(trimmed, "- ") ||
			strings.HasPrefix(trimmed, "* ") ||
			strings.HasPrefix(trimmed, "+ ") ||
			strings.HasPrefix(trimmed, "|") {
			if len(paragraphLines) > 0 {
				break
			}
			continue
		}

		paragraphLines = append(paragraphLines, trimmed)
	}

	if len(paragraphLines) == 0 {
		return ""
	}

	snippet := strings.Join(paragraphLines, " ")

	if len(snippet) > maxSnippetLength {
		snippet = snippet[:maxSnippetLength]
		if lastSpace := strings.LastIndexAny(snippet, " \t"); lastSpace > 0 {
			snippet = snippet[:lastSpace]
		}
		snippet += "..."
	}

	return snippet
}
