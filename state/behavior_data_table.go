package state

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/jmoiron/sqlx"

	"github.com/trustsignal/behaviorsync/capture"
	"github.com/trustsignal/behaviorsync/query"
	"github.com/trustsignal/behaviorsync/sqlutil"
)

// BehaviorDataRow is the persisted form of one flushed record. The pattern
// collections and snapshots live in a single CBOR payload column: we never
// search inside them, so a compact opaque encoding wins over JSONB.
type BehaviorDataRow struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	UserID    string `db:"user_id"`
	Scenario  string `db:"scenario"`
	Timestamp int64  `db:"timestamp"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
	Payload   []byte `db:"payload"`
}

// SessionSummary is one row of the back-office sessions collection.
type SessionSummary struct {
	ID            string `db:"id" json:"id"`
	SessionID     string `db:"session_id" json:"sessionId"`
	UserID        string `db:"user_id" json:"userId"`
	Scenario      string `db:"scenario" json:"scenario"`
	Timestamp     int64  `db:"timestamp" json:"timestamp"`
	CreatedAt     int64  `db:"created_at" json:"createdAt"`
	MotionSamples int    `db:"motion_samples" json:"motionSamples"`
	TouchEvents   int    `db:"touch_events" json:"touchEvents"`
	Keystrokes    int    `db:"keystrokes" json:"keystrokes"`
}

type BehaviorDataTable struct {
	db *sqlx.DB
}

func NewBehaviorDataTable(db *sqlx.DB) *BehaviorDataTable {
	// make sure tables are made
	db.MustExec(`
	CREATE TABLE IF NOT EXISTS bsync_behavior_data (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		scenario TEXT NOT NULL,
		timestamp BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		motion_samples INTEGER NOT NULL DEFAULT 0,
		touch_events INTEGER NOT NULL DEFAULT 0,
		keystrokes INTEGER NOT NULL DEFAULT 0,
		payload BYTEA NOT NULL
	);
	CREATE INDEX IF NOT EXISTS bsync_behavior_data_user_idx ON bsync_behavior_data(user_id);
	CREATE INDEX IF NOT EXISTS bsync_behavior_data_session_idx ON bsync_behavior_data(session_id);
	`)
	return &BehaviorDataTable{db}
}

// Insert persists one record. Records are immutable once transmitted: a
// conflicting ID is a client retry of data we already hold, so it is a no-op
// rather than an update. Returns whether a new row was written.
func (t *BehaviorDataTable) Insert(data *capture.BehaviorData, now int64) (bool, error) {
	payload, err := cbor.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("BehaviorDataTable.Insert: cbor marshal: %w", err)
	}
	motion, touch, keys := countEvents(data)
	var inserted bool
	err = sqlutil.WithTransaction(t.db, func(txn *sqlx.Tx) error {
		res, err := txn.Exec(`
		INSERT INTO bsync_behavior_data(id, session_id, user_id, scenario, timestamp, created_at, updated_at, motion_samples, touch_events, keystrokes, payload)
		VALUES($1, $2, $3, $4, $5, $6, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
			data.ID, data.SessionID, data.UserID, string(data.Scenario), data.Timestamp, now, motion, touch, keys, payload,
		)
		if err != nil {
			return err
		}
		ra, err := res.RowsAffected()
		inserted = ra > 0
		return err
	})
	return inserted, err
}

// SelectByID loads one full record, payload decoded.
func (t *BehaviorDataTable) SelectByID(id string) (*capture.BehaviorData, error) {
	var row BehaviorDataRow
	err := t.db.Get(&row, `SELECT id, session_id, user_id, scenario, timestamp, created_at, updated_at, payload FROM bsync_behavior_data WHERE id=$1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return row.decode()
}

// SelectBySessionID loads every record flushed for a session, oldest first.
// Used by the alert channel to inspect finalized snapshots.
func (t *BehaviorDataTable) SelectBySessionID(sessionID string) ([]*capture.BehaviorData, error) {
	var rows []BehaviorDataRow
	err := t.db.Select(&rows, `SELECT id, session_id, user_id, scenario, timestamp, created_at, updated_at, payload FROM bsync_behavior_data WHERE session_id=$1 ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	result := make([]*capture.BehaviorData, 0, len(rows))
	for _, row := range rows {
		data, err := row.decode()
		if err != nil {
			return nil, err
		}
		result = append(result, data)
	}
	return result, nil
}

// SelectByUserID loads every record for a user, oldest first. Feeds the
// profile builder.
func (t *BehaviorDataTable) SelectByUserID(userID string) ([]*capture.BehaviorData, error) {
	var rows []BehaviorDataRow
	err := t.db.Select(&rows, `SELECT id, session_id, user_id, scenario, timestamp, created_at, updated_at, payload FROM bsync_behavior_data WHERE user_id=$1 ORDER BY timestamp ASC`, userID)
	if err != nil {
		return nil, err
	}
	result := make([]*capture.BehaviorData, 0, len(rows))
	for _, row := range rows {
		data, err := row.decode()
		if err != nil {
			return nil, err
		}
		result = append(result, data)
	}
	return result, nil
}

var sessionSortColumns = map[string]string{
	"timestamp": "timestamp",
	"createdAt": "created_at",
	"userId":    "user_id",
	"sessionId": "session_id",
}

// SelectPage returns one page of session summaries plus the total row count for
// the given filters.
func (t *BehaviorDataTable) SelectPage(params query.Params) ([]SessionSummary, int, error) {
	where, args := sessionFilterSQL(params.Filters)
	var total int
	if err := t.db.Get(&total, `SELECT count(*) FROM bsync_behavior_data`+where, args...); err != nil {
		return nil, 0, err
	}
	orderBy, err := orderBySQL(sessionSortColumns, params.Sort, "timestamp DESC")
	if err != nil {
		return nil, 0, err
	}
	limit, offset := limitOffset(params.Pagination)
	rows := []SessionSummary{}
	sel := `SELECT id, session_id, user_id, scenario, timestamp, created_at, motion_samples, touch_events, keystrokes FROM bsync_behavior_data` +
		where + orderBy + fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	if err := t.db.Select(&rows, sel, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func sessionFilterSQL(f query.Filters) (string, []interface{}) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.Scenario != "" {
		conds = append(conds, "scenario = "+arg(f.Scenario))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(user_id ILIKE "+p+" OR session_id ILIKE "+p+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (row *BehaviorDataRow) decode() (*capture.BehaviorData, error) {
	var data capture.BehaviorData
	if err := cbor.Unmarshal(row.Payload, &data); err != nil {
		return nil, fmt.Errorf("corrupt behavior payload for %s: %w", row.ID, err)
	}
	data.ID = row.ID
	data.SessionID = row.SessionID
	data.UserID = row.UserID
	data.CreatedAt = row.CreatedAt
	data.UpdatedAt = row.UpdatedAt
	return &data, nil
}

func countEvents(data *capture.BehaviorData) (motion, touch, keys int) {
	for _, p := range data.MotionPatterns {
		motion += len(p.Samples)
	}
	for _, p := range data.TouchPatterns {
		touch += len(p.Events)
	}
	for _, p := range data.TypingPatterns {
		keys += len(p.Keystrokes)
	}
	return
}

// orderBySQL validates the sort request against the column whitelist for a
// collection; unknown fields are rejected rather than interpolated.
func orderBySQL(whitelist map[string]string, s query.Sort, fallback string) (string, error) {
	if s.Field == "" {
		return " ORDER BY " + fallback, nil
	}
	col, ok := whitelist[s.Field]
	if !ok {
		return "", fmt.Errorf("cannot sort by field %q", s.Field)
	}
	dir := "ASC"
	switch s.Direction {
	case query.DirectionAsc, "":
	case query.DirectionDesc:
		dir = "DESC"
	default:
		return "", fmt.Errorf("invalid sort direction %q", s.Direction)
	}
	return " ORDER BY " + col + " " + dir, nil
}

func limitOffset(p query.Pagination) (limit, offset int) {
	limit = p.PageSize
	if limit <= 0 {
		limit = 10
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
