package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/recruit/pkg/models"
)

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}
	role := u.Role
	if role == "" {
		role = models.RoleUser
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO users (name, email, phone, role, password_hash, created) VALUES (?, ?, ?, ?, ?, ?)`, u.Name, u.Email, u.Phone, string(role), u.PasswordHash, now())
	if err != nil {
		return 0, conflict("insert user", err)
	}

	return res.LastInsertId()
}

const userColumns = `id, name, email, phone, role, password_hash, created`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var role string
	var created int64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role, &u.PasswordHash, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Role = models.Role(role)
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

func (r *SQLiteRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepo) UpdateUserRole(ctx context.Context, id int64, role models.Role) error {
	_, err := r.conn.Exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	return err
}
