package state

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/trustsignal/behaviorsync/query"
)

// UserRow is one row of the back-office users collection.
type UserRow struct {
	UserID      string `db:"user_id" json:"userId"`
	DisplayName string `db:"display_name" json:"displayName"`
	Status      string `db:"status" json:"status"`
	CreatedAt   int64  `db:"created_at" json:"createdAt"`
	LastSeen    int64  `db:"last_seen" json:"lastSeen"`
}

type UsersTable struct {
	db                 *sqlx.DB
	upsertStmt         *sql.Stmt
	updateLastSeenStmt *sql.Stmt
}

func NewUsersTable(db *sqlx.DB) *UsersTable {
	// make sure tables are made
	db.MustExec(`
	CREATE TABLE IF NOT EXISTS bsync_users (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at BIGINT NOT NULL,
		last_seen BIGINT NOT NULL
	);
	`)
	t := &UsersTable{db: db}
	stmts := statementList{
		{&t.upsertStmt, `
			INSERT INTO bsync_users(user_id, display_name, status, created_at, last_seen)
			VALUES($1, $2, 'active', $3, $3)
			ON CONFLICT (user_id) DO UPDATE SET last_seen = excluded.last_seen`},
		{&t.updateLastSeenStmt, `UPDATE bsync_users SET last_seen = $2 WHERE user_id = $1`},
	}
	if err := stmts.Prepare(db.DB); err != nil {
		logger.Panic().Err(err).Msg("failed to prepare users table statements")
	}
	return t
}

// Upsert ensures the user exists, bumping last_seen either way.
func (t *UsersTable) Upsert(userID, displayName string, now int64) error {
	_, err := t.upsertStmt.Exec(userID, displayName, now)
	return err
}

func (t *UsersTable) UpdateLastSeen(userID string, now int64) error {
	_, err := t.updateLastSeenStmt.Exec(userID, now)
	return err
}

func (t *UsersTable) Select(userID string) (*UserRow, error) {
	var row UserRow
	err := t.db.Get(&row, `SELECT user_id, display_name, status, created_at, last_seen FROM bsync_users WHERE user_id=$1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

var userSortColumns = map[string]string{
	"userId":    "user_id",
	"createdAt": "created_at",
	"lastSeen":  "last_seen",
	"status":    "status",
}

func (t *UsersTable) SelectPage(params query.Params) ([]UserRow, int, error) {
	where, args := userFilterSQL(params.Filters)
	var total int
	if err := t.db.Get(&total, `SELECT count(*) FROM bsync_users`+where, args...); err != nil {
		return nil, 0, err
	}
	orderBy, err := orderBySQL(userSortColumns, params.Sort, "last_seen DESC")
	if err != nil {
		return nil, 0, err
	}
	limit, offset := limitOffset(params.Pagination)
	rows := []UserRow{}
	sel := `SELECT user_id, display_name, status, created_at, last_seen FROM bsync_users` +
		where + orderBy + fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	if err := t.db.Select(&rows, sel, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func userFilterSQL(f query.Filters) (string, []interface{}) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(user_id ILIKE "+p+" OR display_name ILIKE "+p+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
