package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/store"
)

const nodeColumns = `id, position, secret_hash, status, used_by, created_at, updated_at`

type nodesRepo struct {
	db  *sql.DB
	now func() time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (domain.Node, error) {
	var (
		n                domain.Node
		status           string
		created, updated int64
	)
	err := row.Scan(&n.ID, &n.Position, &n.SecretHash, &status, &n.UsedBy, &created, &updated)
	if err != nil {
		return domain.Node{}, err
	}
	n.Status = domain.NodeStatus(status)
	n.CreatedAt = fromUnixNano(created)
	n.UpdatedAt = fromUnixNano(updated)
	return n, nil
}

func (r *nodesRepo) GetNode(ctx context.Context, id string) (domain.Node, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err != nil {
		return domain.Node{}, mapNotFound(err)
	}
	return n, nil
}

func (r *nodesRepo) ListNodes(ctx context.Context, filter store.NodeFilter) ([]domain.Node, error) {
	q := `SELECT ` + nodeColumns + ` FROM nodes WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UsedBy != "" {
		q += ` AND used_by = ?`
		args = append(args, filter.UsedBy)
	}
	q += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *nodesRepo) CreateNode(ctx context.Context, n domain.Node) error {
	now := r.now()
	if n.Status == "" {
		n.Status = domain.NodeFree
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO nodes (`+nodeColumns+`) VALUES (`+placeholders(7)+`)`,
		n.ID, n.Position, n.SecretHash, string(n.Status), n.UsedBy, unixNano(now), unixNano(now),
	)
	return mapConstraint(err)
}

func (r *nodesRepo) UpdateNode(ctx context.Context, id string, patch store.NodePatch) error {
	return r.UpdateNodeIf(ctx, id, store.NodeCondition{}, patch)
}

func (r *nodesRepo) UpdateNodeIf(
	ctx context.Context,
	id string,
	cond store.NodeCondition,
	patch store.NodePatch,
) error {
	u := &update{}
	if patch.Status != nil {
		u.set("status", string(*patch.Status))
	}
	if patch.UsedBy != nil {
		u.set("used_by", *patch.UsedBy)
	}
	if patch.Position != nil {
		u.set("position", *patch.Position)
	}
	if patch.SecretHash != nil {
		u.set("secret_hash", *patch.SecretHash)
	}
	u.set("updated_at", unixNano(r.now()))

	if len(cond.Status) > 0 {
		args := make([]any, len(cond.Status))
		for i, s := range cond.Status {
			args[i] = string(s)
		}
		u.where("status IN ("+placeholders(len(args))+")", args...)
	}
	if cond.UsedBy != nil {
		u.where("used_by = ?", *cond.UsedBy)
	}

	return u.exec(ctx, r.db, "nodes", id)
}

func (r *nodesRepo) DeleteNode(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
