package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"taxi-service/internal/domain"
	"taxi-service/pkg/db"
)

// Repository persists staff accounts.
type Repository interface {
	Insert(ctx context.Context, m *Member) error
	GetByEmail(ctx context.Context, email string) (*Member, error)
	GetByID(ctx context.Context, id string) (*Member, error)
	List(ctx context.Context) ([]*Member, error)
	CountAdmins(ctx context.Context) (int, error)
}

// PostgresRepository is the Repository backed by the staff table.
type PostgresRepository struct {
	tx *db.TxManager
}

// NewPostgresRepository returns a repository using tx for connections.
func NewPostgresRepository(tx *db.TxManager) *PostgresRepository {
	return &PostgresRepository{tx: tx}
}

const memberColumns = `id, name, email, role, password_hash, created_at`

func (r *PostgresRepository) Insert(ctx context.Context, m *Member) error {
	err := r.tx.Conn(ctx).QueryRow(ctx,
		`INSERT INTO staff (id, name, email, role, password_hash) VALUES ($1,$2,$3,$4,$5)
		 RETURNING created_at`,
		m.ID, m.Name, m.Email, string(m.Role), m.PasswordHash).Scan(&m.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: e-mail already registered", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM staff WHERE email=$1`, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Member, error) {
	return r.getOne(ctx, `SELECT `+memberColumns+` FROM staff WHERE id=$1`, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*Member, error) {
	row := r.tx.Conn(ctx).QueryRow(ctx, query, arg)
	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*Member, error) {
	rows, err := r.tx.Conn(ctx).Query(ctx, `SELECT `+memberColumns+` FROM staff ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.tx.Conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff WHERE role='admin'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	var role string
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &role, &m.PasswordHash, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	return &m, nil
}
