package theater

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/crud-e2e/internal/db"
	"github.com/kuitang/crud-e2e/internal/errs"
)

// Theater is an event record. JSON names follow the practice server the
// MyTheater client talks to.
type Theater struct {
	ID          string `json:"_id"`
	OwnerID     string `json:"_ownerId"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Author      string `json:"author"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	CreatedOn   int64  `json:"_createdOn"`
}

// Fields is the client-editable part of a Theater.
type Fields struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Author      string `json:"author"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// Validate requires every field to be non-blank.
func (f Fields) Validate() error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"title", f.Title},
		{"date", f.Date},
		{"author", f.Author},
		{"description", f.Description},
		{"imageUrl", f.ImageURL},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return errs.New(errs.InvalidArgument, "missing fields: "+strings.Join(missing, ", "))
	}
	return nil
}

// Store persists theaters in the theaters table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store over a database opened with db.AuthSchema and
// db.TheatersSchema.
func NewStore(database *db.DB) *Store {
	return &Store{db: database.SQL(), now: time.Now}
}

const theaterColumns = `id, owner_id, title, date, author, description, image_url, created_at`

// Create inserts a theater owned by ownerID.
func (s *Store) Create(ctx context.Context, ownerID string, f Fields) (*Theater, error) {
	t := &Theater{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       f.Title,
		Date:        f.Date,
		Author:      f.Author,
		Description: f.Description,
		ImageURL:    f.ImageURL,
		CreatedOn:   s.now().UnixMilli(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO theaters (`+theaterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, t.Date, t.Author, t.Description, t.ImageURL, t.CreatedOn)
	if err != nil {
		return nil, fmt.Errorf("insert theater: %w", err)
	}
	return t, nil
}

// Get loads a theater by ID.
func (s *Store) Get(ctx context.Context, id string) (*Theater, error) {
	t, err := scanTheater(s.db.QueryRowContext(ctx, `SELECT `+theaterColumns+` FROM theaters WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "Resource not found")
		}
		return nil, fmt.Errorf("get theater: %w", err)
	}
	return t, nil
}

// List returns theaters newest first, restricted to ownerID when non-empty.
func (s *Store) List(ctx context.Context, ownerID string) ([]*Theater, error) {
	query := `SELECT ` + theaterColumns + ` FROM theaters`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list theaters: %w", err)
	}
	defer rows.Close()

	out := []*Theater{}
	for rows.Next() {
		t, err := scanTheater(rows)
		if err != nil {
			return nil, fmt.Errorf("scan theater: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update replaces the editable fields of a theater.
func (s *Store) Update(ctx context.Context, id string, f Fields) (*Theater, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE theaters SET title = ?, date = ?, author = ?, description = ?, image_url = ? WHERE id = ?`,
		f.Title, f.Date, f.Author, f.Description, f.ImageURL, id)
	if err != nil {
		return nil, fmt.Errorf("update theater: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errs.New(errs.NotFound, "Resource not found")
	}
	return s.Get(ctx, id)
}

// Delete removes a theater and returns the deletion time in milliseconds.
func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM theaters WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete theater: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, errs.New(errs.NotFound, "Resource not found")
	}
	return s.now().UnixMilli(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTheater(row rowScanner) (*Theater, error) {
	var t Theater
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Date, &t.Author, &t.Description, &t.ImageURL, &t.CreatedOn); err != nil {
		return nil, err
	}
	return &t, nil
}
