package state

import (
	"github.com/jmoiron/sqlx"
)

// AlertRow records an anomaly raised by a collaborator against a session. The
// core only stores alerts and exposes the session's finalized snapshots for the
// raiser to inspect; it performs no scoring of its own.
type AlertRow struct {
	ID        int64  `db:"id" json:"id"`
	SessionID string `db:"session_id" json:"sessionId"`
	UserID    string `db:"user_id" json:"userId"`
	Reason    string `db:"reason" json:"reason"`
	CreatedAt int64  `db:"created_at" json:"createdAt"`
}

type AlertsTable struct {
	db *sqlx.DB
}

func NewAlertsTable(db *sqlx.DB) *AlertsTable {
	// make sure tables are made
	db.MustExec(`
	CREATE SEQUENCE IF NOT EXISTS bsync_alert_id_seq;
	CREATE TABLE IF NOT EXISTS bsync_alerts (
		id BIGINT PRIMARY KEY DEFAULT nextval('bsync_alert_id_seq'),
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS bsync_alerts_session_idx ON bsync_alerts(session_id);
	`)
	return &AlertsTable{db}
}

func (t *AlertsTable) Insert(sessionID, userID, reason string, now int64) (int64, error) {
	var id int64
	err := t.db.QueryRow(
		`INSERT INTO bsync_alerts(session_id, user_id, reason, created_at) VALUES($1, $2, $3, $4) RETURNING id`,
		sessionID, userID, reason, now,
	).Scan(&id)
	return id, err
}

func (t *AlertsTable) SelectBySessionID(sessionID string) ([]AlertRow, error) {
	rows := []AlertRow{}
	err := t.db.Select(&rows, `SELECT id, session_id, user_id, reason, created_at FROM bsync_alerts WHERE session_id=$1 ORDER BY id ASC`, sessionID)
	return rows, err
}
