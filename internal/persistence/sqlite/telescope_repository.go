package sqlite

import (
	"context"
	"strings"

	"github.com/example/telescope-scheduler/internal/persistence"
)

// TelescopeRepository implements persistence.TelescopeRepository using SQLite
type TelescopeRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewTelescopeRepository creates a new SQLite telescope repository
func NewTelescopeRepository(pool *ConnectionPool) *TelescopeRepository {
	return &TelescopeRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const telescopeColumns = `id, name, location, online, created_at`

// CreateTelescope inserts a telescope.
func (r *TelescopeRepository) CreateTelescope(ctx context.Context, telescope persistence.Telescope) error {
	if telescope.ID == "" || strings.TrimSpace(telescope.Name) == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO telescopes (`+telescopeColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		telescope.ID,
		strings.TrimSpace(telescope.Name),
		strings.TrimSpace(telescope.Location),
		boolToInt(telescope.Online),
		toMillis(telescope.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetTelescope retrieves a telescope by ID.
func (r *TelescopeRepository) GetTelescope(ctx context.Context, id string) (persistence.Telescope, error) {
	if id == "" {
		return persistence.Telescope{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+telescopeColumns+` FROM telescopes WHERE id = ?`, id)
	telescope, err := scanTelescope(row)
	if err != nil {
		return persistence.Telescope{}, r.mapper.MapError(err)
	}
	return telescope, nil
}

// ListTelescopes returns every telescope ordered by name.
func (r *TelescopeRepository) ListTelescopes(ctx context.Context) ([]persistence.Telescope, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+telescopeColumns+` FROM telescopes ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var telescopes []persistence.Telescope
	for rows.Next() {
		telescope, err := scanTelescope(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		telescopes = append(telescopes, telescope)
	}
	return telescopes, r.mapper.MapError(rows.Err())
}

// TelescopeNameExists reports whether name is taken, ignoring case.
func (r *TelescopeRepository) TelescopeNameExists(ctx context.Context, name string) (bool, error) {
	var exists int
	err := r.helper.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM telescopes WHERE name = ?)`, strings.TrimSpace(name)).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists == 1, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTelescope(row scanner) (persistence.Telescope, error) {
	var (
		telescope persistence.Telescope
		online    int
		createdAt int64
	)
	if err := row.Scan(&telescope.ID, &telescope.Name, &telescope.Location, &online, &createdAt); err != nil {
		return persistence.Telescope{}, err
	}
	telescope.Online = online == 1
	telescope.CreatedAt = fromMillis(createdAt)
	return telescope, nil
}
