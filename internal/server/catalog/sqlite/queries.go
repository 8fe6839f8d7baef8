package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ccheshirecat/msgbus/internal/server/catalog"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339,
	time.RFC3339Nano,
}

// executor abstracts *sql.DB and *sql.Tx for shared query logic.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type topicRepository struct {
	exec executor
}

var _ catalog.TopicRepository = (*topicRepository)(nil)

const topicColumns = `id, name, description, created_at, updated_at`

func (r *topicRepository) Upsert(ctx context.Context, topic catalog.Topic) error {
	if err := catalog.Validate(topic); err != nil {
		return err
	}
	_, err := r.exec.ExecContext(ctx,
		`INSERT INTO topics (id, name, description) VALUES (?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description, updated_at = CURRENT_TIMESTAMP;`,
		int64(topic.ID), topic.Name, topic.Description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", catalog.ErrConflict, topic.Name)
		}
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

func (r *topicRepository) Get(ctx context.Context, id uint32) (*catalog.Topic, error) {
	row := r.exec.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?;`, int64(id))
	return scanOne(row)
}

func (r *topicRepository) GetByName(ctx context.Context, name string) (*catalog.Topic, error) {
	row := r.exec.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE name = ?;`, name)
	return scanOne(row)
}

func (r *topicRepository) List(ctx context.Context) ([]catalog.Topic, error) {
	rows, err := r.exec.QueryContext(ctx, `SELECT `+topicColumns+` FROM topics ORDER BY id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []catalog.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (r *topicRepository) Delete(ctx context.Context, id uint32) error {
	res, err := r.exec.ExecContext(ctx, `DELETE FROM topics WHERE id = ?;`, int64(id))
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete topic rows: %w", err)
	} else if rows == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanOne(row rowScanner) (*catalog.Topic, error) {
	t, err := scanTopic(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func scanTopic(row rowScanner) (catalog.Topic, error) {
	var (
		t         catalog.Topic
		id        int64
		createdAt any
		updatedAt any
	)
	if err := row.Scan(&id, &t.Name, &t.Description, &createdAt, &updatedAt); err != nil {
		return catalog.Topic{}, err
	}
	t.ID = uint32(id)

	var err error
	if t.CreatedAt, err = coerceTime(createdAt); err != nil {
		return catalog.Topic{}, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = coerceTime(updatedAt); err != nil {
		return catalog.Topic{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func coerceTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTimestamp(v)
	case []byte:
		return parseTimestamp(string(v))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", value)
	}
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time format: %q", s)
}
