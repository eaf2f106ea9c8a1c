package drones

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/crud-e2e/internal/db"
)

// ErrNotFound is returned when a drone does not exist.
var ErrNotFound = errors.New("drone not found")

// Drone is a marketplace listing.
type Drone struct {
	ID          string
	OwnerID     string
	Model       string
	ImageURL    string
	Price       float64
	Weight      float64
	Phone       string
	Condition   string
	Description string
	CreatedAt   time.Time
}

// Input is the raw form submission for a drone.
type Input struct {
	Model       string
	ImageURL    string
	Price       string
	Weight      string
	Phone       string
	Condition   string
	Description string
}

// FieldErrors maps form field names to a validation message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, field := range fieldOrder {
		if msg, ok := e[field]; ok {
			parts = append(parts, field+": "+msg)
		}
	}
	return "invalid drone: " + strings.Join(parts, "; ")
}

var fieldOrder = []string{"model", "imageUrl", "price", "weight", "phone", "condition", "description"}

// Parse validates the input and converts it into a Drone without identity
// fields. The returned error is a FieldErrors.
func (in Input) Parse() (Drone, error) {
	errs := FieldErrors{}
	d := Drone{
		Model:       strings.TrimSpace(in.Model),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Phone:       strings.TrimSpace(in.Phone),
		Condition:   strings.TrimSpace(in.Condition),
		Description: strings.TrimSpace(in.Description),
	}

	if d.Model == "" {
		errs["model"] = "Model is required"
	}
	if u, err := url.Parse(d.ImageURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs["imageUrl"] = "Image URL must start with http:// or https://"
	}
	var err error
	if d.Price, err = parsePositive(in.Price); err != nil {
		errs["price"] = "Price must be a positive number"
	}
	if d.Weight, err = parsePositive(in.Weight); err != nil {
		errs["weight"] = "Weight must be a positive number"
	}
	if d.Phone == "" {
		errs["phone"] = "Phone is required"
	}
	if d.Condition == "" {
		errs["condition"] = "Condition is required"
	}
	if d.Description == "" {
		errs["description"] = "Description is required"
	}

	if len(errs) > 0 {
		return Drone{}, errs
	}
	return d, nil
}

// InputFrom converts a stored drone back into form values.
func InputFrom(d *Drone) Input {
	return Input{
		Model:       d.Model,
		ImageURL:    d.ImageURL,
		Price:       strconv.FormatFloat(d.Price, 'f', -1, 64),
		Weight:      strconv.FormatFloat(d.Weight, 'f', -1, 64),
		Phone:       d.Phone,
		Condition:   d.Condition,
		Description: d.Description,
	}
}

func parsePositive(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %v", v)
	}
	if v <= 0 {
		return 0, fmt.Errorf("not positive: %v", v)
	}
	return v, nil
}

// Store persists drones in the drones table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store over a database opened with db.AuthSchema and
// db.DronesSchema.
func NewStore(database *db.DB) *Store {
	return &Store{db: database.SQL(), now: time.Now}
}

const droneColumns = `id, owner_id, model, image_url, price, weight, phone, condition, description, created_at`

// Create inserts a new drone owned by ownerID.
func (s *Store) Create(ctx context.Context, ownerID string, d Drone) (*Drone, error) {
	d.ID = uuid.NewString()
	d.OwnerID = ownerID
	d.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drones (`+droneColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Model, d.ImageURL, d.Price, d.Weight, d.Phone, d.Condition, d.Description, d.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert drone: %w", err)
	}
	return &d, nil
}

// Get loads a drone by ID.
func (s *Store) Get(ctx context.Context, id string) (*Drone, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+droneColumns+` FROM drones WHERE id = ?`, id)
	d, err := scanDrone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get drone: %w", err)
	}
	return d, nil
}

// List returns all drones, newest first.
func (s *Store) List(ctx context.Context) ([]*Drone, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+droneColumns+` FROM drones ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list drones: %w", err)
	}
	defer rows.Close()

	var out []*Drone
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drone: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Update replaces the editable fields of a drone.
func (s *Store) Update(ctx context.Context, id string, d Drone) (*Drone, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drones SET model = ?, image_url = ?, price = ?, weight = ?, phone = ?, condition = ?, description = ? WHERE id = ?`,
		d.Model, d.ImageURL, d.Price, d.Weight, d.Phone, d.Condition, d.Description, id)
	if err != nil {
		return nil, fmt.Errorf("update drone: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a drone.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drones WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete drone: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrone(row rowScanner) (*Drone, error) {
	var (
		d         Drone
		createdAt int64
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Model, &d.ImageURL, &d.Price, &d.Weight, &d.Phone, &d.Condition, &d.Description, &createdAt); err != nil {
		return nil, err
	}
	d.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &d, nil
}
