package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/css3blog/blog/domain"
	"github.com/dfryer1193/css3blog/shared/db"
)

var _ domain.PostRepository = (*SQLitePostRepository)(nil)

const defaultListLimit = 10

// SQLitePostRepository implements domain.PostRepository using SQL database (SQLite)
type SQLitePostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *SQLitePostRepository {
	return &SQLitePostRepository{
		db: db,
	}
}

const insertPostQuery = `
	INSERT INTO blog_posts (title, body, md_file, pub_date, last_edit_date, slug, html_path)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// CreatePost inserts p and sets its ID
func (r *SQLitePostRepository) CreatePost(ctx context.Context, p *domain.BlogPost) error {
	if p == nil {
		return fmt.Errorf("post cannot be nil")
	}

	executor := db.GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, insertPostQuery,
		p.Title,
		p.Body,
		p.MDFile,
		p.PubDate,
		p.LastEditDate,
		p.Slug,
		p.HTMLPath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted post ID: %w", err)
	}
	p.ID = id

	return nil
}

const updatePostQuery = `
	UPDATE blog_posts
	SET title = ?, body = ?, md_file = ?, pub_date = ?, last_edit_date = ?, slug = ?, html_path = ?
	WHERE id = ?
`

// UpdatePost overwrites every column of an existing post
func (r *SQLitePostRepository) UpdatePost(ctx context.Context, p *domain.BlogPost) error {
	if p == nil {
		return fmt.Errorf("post cannot be nil")
	}

	if p.ID == 0 {
		return fmt.Errorf("post ID cannot be empty")
	}

	executor := db.GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, updatePostQuery,
		p.Title,
		p.Body,
		p.MDFile,
		p.PubDate,
		p.LastEditDate,
		p.Slug,
		p.HTMLPath,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	return requireAffected(result, p.ID)
}

const getPostQuery = `
	SELECT id, title, body, md_file, pub_date, last_edit_date, slug, html_path
	FROM blog_posts
	WHERE id = ?
`

func (r *SQLitePostRepository) GetPost(ctx context.Context, id int64) (*domain.BlogPost, error) {
	var row postRow
	err := db.GetExecutor(ctx, r.db).QueryRowContext(ctx, getPostQuery, id).Scan(row.fields()...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", domain.ErrPostNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return row.toDomain(), nil
}

const listPostsQuery = `
	SELECT id, title, body, md_file, pub_date, last_edit_date, slug, html_path
	FROM blog_posts
	ORDER BY pub_date DESC, id DESC
	LIMIT ? OFFSET ?
`

// ListPosts returns posts ordered by publication date descending
func (r *SQLitePostRepository) ListPosts(ctx context.Context, limit, offset int) ([]*domain.BlogPost, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.GetExecutor(ctx, r.db).QueryContext(ctx, listPostsQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*domain.BlogPost, 0)
	for rows.Next() {
		var row postRow
		if err := rows.Scan(row.fields()...); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, row.toDomain())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}

	return posts, nil
}

const deletePostQuery = `
	DELETE FROM blog_posts WHERE id = ?
`

// DeletePost removes a post. The hook runs inside the same transaction before the row is deleted,
// so a failing hook leaves the record in place.
func (r *SQLitePostRepository) DeletePost(ctx context.Context, id int64, hook domain.PreDeleteHook) error {
	return db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		p, err := r.GetPost(txCtx, id)
		if err != nil {
			return err
		}

		if hook != nil {
			if err := hook(txCtx, p); err != nil {
				return fmt.Errorf("pre-delete hook failed for post %d: %w", id, err)
			}
		}

		executor := db.GetExecutor(txCtx, r.db)
		result, err := executor.ExecContext(txCtx, deletePostQuery, id)
		if err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}

		return requireAffected(result, id)
	})
}

func requireAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", domain.ErrPostNotFound, id)
	}
	return nil
}

// postRow is a private struct used to scan database rows
type postRow struct {
	ID           int64     `db:"id"`
	Title        string    `db:"title"`
	Body         string    `db:"body"`
	MDFile       string    `db:"md_file"`
	PubDate      time.Time `db:"pub_date"`
	LastEditDate time.Time `db:"last_edit_date"`
	Slug         string    `db:"slug"`
	HTMLPath     string    `db:"html_path"`
}

func (pr *postRow) fields() []any {
	return []any{
		&pr.ID,
		&pr.Title,
		&pr.Body,
		&pr.MDFile,
		&pr.PubDate,
		&pr.LastEditDate,
		&pr.Slug,
		&pr.HTMLPath,
	}
}

func (pr *postRow) toDomain() *domain.BlogPost {
	return &domain.BlogPost{
		ID:           pr.ID,
		Title:        pr.Title,
		Body:         pr.Body,
		MDFile:       pr.MDFile,
		PubDate:      pr.PubDate,
		LastEditDate: pr.LastEditDate,
		Slug:         pr.Slug,
		HTMLPath:     pr.HTMLPath,
	}
}
