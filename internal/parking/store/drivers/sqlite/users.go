package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/store"
)

const userColumns = `id, username, email, is_admin, badge_expiration, auth_secret, account,
	is_parked, nb_reservations, pwd_reset_tk, created_at, updated_at`

type usersRepo struct {
	db  *sql.DB
	now func() time.Time
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                        domain.User
		isAdmin, isParked        int
		account                  string
		expiration, created, upd int64
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &isAdmin, &expiration, &u.AuthSecret, &account,
		&isParked, &u.NbReservations, &u.PwdResetToken, &created, &upd,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.IsAdmin = isAdmin != 0
	u.IsParked = isParked != 0
	u.Account = domain.AccountState(account)
	u.BadgeExpiration = fromUnixNano(expiration)
	u.CreatedAt = fromUnixNano(created)
	u.UpdatedAt = fromUnixNano(upd)
	return u, nil
}

func (r *usersRepo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) ListUsers(ctx context.Context, filter store.UserFilter) ([]domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE 1 = 1`
	var args []any
	if filter.IsAdmin != nil {
		q += ` AND is_admin = ?`
		args = append(args, boolInt(*filter.IsAdmin))
	}
	if filter.IsParked != nil {
		q += ` AND is_parked = ?`
		args = append(args, boolInt(*filter.IsParked))
	}
	if filter.Locked != nil {
		if *filter.Locked {
			q += ` AND account = ?`
		} else {
			q += ` AND account != ?`
		}
		args = append(args, string(domain.AccountLocked))
	}
	q += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := r.now()
	if u.Account == "" {
		u.Account = domain.AccountActive
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (`+placeholders(12)+`)`,
		u.ID, u.Username, u.Email, boolInt(u.IsAdmin), unixNano(u.BadgeExpiration),
		u.AuthSecret, string(u.Account), boolInt(u.IsParked), u.NbReservations,
		u.PwdResetToken, unixNano(now), unixNano(now),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, id string, patch store.UserPatch) error {
	return r.UpdateUserIf(ctx, id, store.UserCondition{}, patch)
}

func (r *usersRepo) UpdateUserIf(
	ctx context.Context,
	id string,
	cond store.UserCondition,
	patch store.UserPatch,
) error {
	u := &update{}
	if patch.Username != nil {
		u.set("username", *patch.Username)
	}
	if patch.Email != nil {
		u.set("email", *patch.Email)
	}
	if patch.IsAdmin != nil {
		u.set("is_admin", boolInt(*patch.IsAdmin))
	}
	if patch.BadgeExpiration != nil {
		u.set("badge_expiration", unixNano(*patch.BadgeExpiration))
	}
	if patch.AuthSecret != nil {
		u.set("auth_secret", *patch.AuthSecret)
	}
	if patch.Account != nil {
		u.set("account", string(*patch.Account))
	}
	if patch.IsParked != nil {
		u.set("is_parked", boolInt(*patch.IsParked))
	}
	if patch.NbReservations != nil {
		u.set("nb_reservations", *patch.NbReservations)
	}
	if patch.PwdResetToken != nil {
		u.set("pwd_reset_tk", *patch.PwdResetToken)
	}
	u.set("updated_at", unixNano(r.now()))

	if cond.AuthSecret != nil {
		u.where("auth_secret = ?", *cond.AuthSecret)
	}
	if cond.Account != nil {
		u.where("account = ?", string(*cond.Account))
	}
	if cond.NbReservations != nil {
		u.where("nb_reservations = ?", *cond.NbReservations)
	}
	if cond.IsParked != nil {
		u.where("is_parked = ?", boolInt(*cond.IsParked))
	}

	return u.exec(ctx, r.db, "users", id)
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
