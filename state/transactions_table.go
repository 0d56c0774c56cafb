package state

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/trustsignal/behaviorsync/query"
)

// TransactionRow is one row of the back-office transactions collection.
type TransactionRow struct {
	ID          string `db:"id" json:"id"`
	UserID      string `db:"user_id" json:"userId"`
	SessionID   string `db:"session_id" json:"sessionId"`
	AmountCents int64  `db:"amount_cents" json:"amountCents"`
	Currency    string `db:"currency" json:"currency"`
	Status      string `db:"status" json:"status"`
	Type        string `db:"type" json:"type"`
	CreatedAt   int64  `db:"created_at" json:"createdAt"`
}

type TransactionsTable struct {
	db *sqlx.DB
}

func NewTransactionsTable(db *sqlx.DB) *TransactionsTable {
	// make sure tables are made
	db.MustExec(`
	CREATE TABLE IF NOT EXISTS bsync_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		type TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS bsync_transactions_user_idx ON bsync_transactions(user_id);
	`)
	return &TransactionsTable{db}
}

func (t *TransactionsTable) Insert(rows []TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	result, err := t.db.NamedQuery(`
		INSERT INTO bsync_transactions (id, user_id, session_id, amount_cents, currency, status, type, created_at)
        VALUES (:id, :user_id, :session_id, :amount_cents, :currency, :status, :type, :created_at)
        ON CONFLICT (id) DO NOTHING`, rows)
	if err == nil {
		result.Close()
	}
	return err
}

var txnSortColumns = map[string]string{
	"createdAt":   "created_at",
	"amountCents": "amount_cents",
	"userId":      "user_id",
	"status":      "status",
}

func (t *TransactionsTable) SelectPage(params query.Params) ([]TransactionRow, int, error) {
	where, args := txnFilterSQL(params.Filters)
	var total int
	if err := t.db.Get(&total, `SELECT count(*) FROM bsync_transactions`+where, args...); err != nil {
		return nil, 0, err
	}
	orderBy, err := orderBySQL(txnSortColumns, params.Sort, "created_at DESC")
	if err != nil {
		return nil, 0, err
	}
	limit, offset := limitOffset(params.Pagination)
	rows := []TransactionRow{}
	sel := `SELECT id, user_id, session_id, amount_cents, currency, status, type, created_at FROM bsync_transactions` +
		where + orderBy + fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	if err := t.db.Select(&rows, sel, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func txnFilterSQL(f query.Filters) (string, []interface{}) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.Type != "" {
		conds = append(conds, "type = "+arg(f.Type))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(user_id ILIKE "+p+" OR id ILIKE "+p+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
