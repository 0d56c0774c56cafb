package migrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/pressly/goose/v3"

	"github.com/trustsignal/behaviorsync/capture"
)

func init() {
	goose.AddMigrationContext(upCborBehaviorPayload, downCborBehaviorPayload)
}

// Early deployments stored the behavior payload as JSONB. We never query inside
// the payload, so it now lives in a BYTEA column as CBOR, which is considerably
// smaller for motion-heavy sessions.
func upCborBehaviorPayload(ctx context.Context, tx *sql.Tx) error {
	// check if we even need to do anything
	var dataType string
	err := tx.QueryRow("select data_type from information_schema.columns where table_name = 'bsync_behavior_data' AND column_name = 'payload'").Scan(&dataType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The table/column doesn't exist and is likely going to be created
			// soon with the correct schema
			return nil
		}
		return err
	}
	if strings.ToLower(dataType) == "bytea" {
		return nil
	}

	_, err = tx.ExecContext(ctx, "ALTER TABLE IF EXISTS bsync_behavior_data ADD COLUMN IF NOT EXISTS payloadb BYTEA;")
	if err != nil {
		return err
	}

	rows, err := tx.Query("SELECT id, payload FROM bsync_behavior_data")
	if err != nil {
		return err
	}
	defer rows.Close()

	payloads := make(map[string][]byte)
	var id string
	var payload []byte
	for rows.Next() {
		if err = rows.Scan(&id, &payload); err != nil {
			return err
		}
		payloads[id] = payload
	}

	for id, jsonBytes := range payloads {
		var data capture.BehaviorData
		if err := json.Unmarshal(jsonBytes, &data); err != nil {
			return fmt.Errorf("failed to unmarshal JSON for %s: %v", id, err)
		}
		cborBytes, err := cbor.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal as CBOR: %v", err)
		}
		_, err = tx.ExecContext(ctx, "UPDATE bsync_behavior_data SET payloadb = $1 WHERE id = $2", cborBytes, id)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, "ALTER TABLE IF EXISTS bsync_behavior_data DROP COLUMN payload;")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "ALTER TABLE IF EXISTS bsync_behavior_data RENAME COLUMN payloadb TO payload;")
	return err
}

func downCborBehaviorPayload(ctx context.Context, tx *sql.Tx) error {
	// check if we even need to do anything
	var dataType string
	err := tx.QueryRow("select data_type from information_schema.columns where table_name = 'bsync_behavior_data' AND column_name = 'payload'").Scan(&dataType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if strings.ToLower(dataType) == "jsonb" {
		return nil
	}

	_, err = tx.ExecContext(ctx, "ALTER TABLE IF EXISTS bsync_behavior_data ADD COLUMN IF NOT EXISTS payloadj JSONB;")
	if err != nil {
		return err
	}

	rows, err := tx.Query("SELECT id, payload FROM bsync_behavior_data")
	if err != nil {
		return err
	}
	defer rows.Close()

	payloads := make(map[string][]byte)
	var id string
	var payload []byte
	for rows.Next() {
		if err = rows.Scan(&id, &payload); err != nil {
			return err
		}
		payloads[id] = payload
	}

	for id, cborBytes := range payloads {
		var data capture.BehaviorData
		if err := cbor.Unmarshal(cborBytes, &data); err != nil {
			return fmt.Errorf("failed to unmarshal CBOR for %s: %v", id, err)
		}
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal as JSON: %v", err)
		}
		_, err = tx.ExecContext(ctx, "UPDATE bsync_behavior_data SET payloadj = $1 WHERE id = $2", jsonBytes, id)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, "ALTER TABLE IF EXISTS bsync_behavior_data DROP COLUMN payload;")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "ALTER TABLE IF EXISTS bsync_behavior_data RENAME COLUMN payloadj TO payload;")
	return err
}
