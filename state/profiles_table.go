package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	"golang.org/x/exp/slices"
)

// BehaviourProfile is the per-user digest derived from historical BehaviorData.
// LocationPatterns holds coarse (2 decimal place) lat/lng cells the user has
// been observed in, most recent last.
type BehaviourProfile struct {
	UserID            string            `json:"userId"`
	DeviceFingerprint string            `json:"deviceFingerprint"`
	SIMOperator       string            `json:"simOperator"`
	LocationPatterns  []LocationPattern `json:"locationPatterns"`
}

type LocationPattern struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Count     int     `json:"count"`
}

type profileRow struct {
	UserID            string `db:"user_id"`
	DeviceFingerprint string `db:"device_fingerprint"`
	SIMOperator       string `db:"sim_operator"`
	LocationPatterns  []byte `db:"location_patterns"`
	UpdatedAt         int64  `db:"updated_at"`
}

type ProfilesTable struct {
	db *sqlx.DB
}

func NewProfilesTable(db *sqlx.DB) *ProfilesTable {
	// make sure tables are made
	db.MustExec(`
	CREATE TABLE IF NOT EXISTS bsync_profiles (
		user_id TEXT PRIMARY KEY,
		device_fingerprint TEXT NOT NULL DEFAULT '',
		sim_operator TEXT NOT NULL DEFAULT '',
		location_patterns JSONB NOT NULL DEFAULT '[]',
		updated_at BIGINT NOT NULL
	);
	`)
	return &ProfilesTable{db}
}

func (t *ProfilesTable) Upsert(p *BehaviourProfile, now int64) error {
	locs, err := json.Marshal(p.LocationPatterns)
	if err != nil {
		return fmt.Errorf("ProfilesTable.Upsert: marshal locations: %w", err)
	}
	_, err = t.db.Exec(`
	INSERT INTO bsync_profiles(user_id, device_fingerprint, sim_operator, location_patterns, updated_at)
	VALUES($1, $2, $3, $4, $5)
	ON CONFLICT (user_id) DO UPDATE SET
		device_fingerprint = excluded.device_fingerprint,
		sim_operator = excluded.sim_operator,
		location_patterns = excluded.location_patterns,
		updated_at = excluded.updated_at`,
		p.UserID, p.DeviceFingerprint, p.SIMOperator, locs, now,
	)
	return err
}

func (t *ProfilesTable) Select(userID string) (*BehaviourProfile, error) {
	var row profileRow
	err := t.db.Get(&row, `SELECT user_id, device_fingerprint, sim_operator, location_patterns, updated_at FROM bsync_profiles WHERE user_id=$1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p := &BehaviourProfile{
		UserID:            row.UserID,
		DeviceFingerprint: row.DeviceFingerprint,
		SIMOperator:       row.SIMOperator,
	}
	if err := json.Unmarshal(row.LocationPatterns, &p.LocationPatterns); err != nil {
		return nil, fmt.Errorf("corrupt location patterns for %s: %w", userID, err)
	}
	return p, nil
}

// RebuildProfile re-derives a user's profile from their full record history.
// The latest non-empty device fingerprint and SIM operator win; location
// patterns bucket permission-granted fixes into coarse cells.
func (s *Storage) RebuildProfile(userID string, now int64) (*BehaviourProfile, error) {
	records, err := s.BehaviorDataTable.SelectByUserID(userID)
	if err != nil {
		return nil, err
	}
	p := &BehaviourProfile{UserID: userID}
	cellCounts := make(map[[2]float64]int)
	var cellOrder [][2]float64
	for _, rec := range records {
		if d := rec.DeviceBehavior; d != nil && d.Fingerprint != "" {
			p.DeviceFingerprint = d.Fingerprint
		}
		if n := rec.NetworkBehavior; n != nil && n.SIMOperator != "" {
			p.SIMOperator = n.SIMOperator
		}
		l := rec.LocationBehavior
		if l == nil || l.PermissionDenied {
			continue
		}
		cell := [2]float64{roundCoord(l.Latitude), roundCoord(l.Longitude)}
		if cellCounts[cell] == 0 {
			cellOrder = append(cellOrder, cell)
		}
		cellCounts[cell]++
	}
	for _, cell := range cellOrder {
		p.LocationPatterns = append(p.LocationPatterns, LocationPattern{
			Latitude:  cell[0],
			Longitude: cell[1],
			Count:     cellCounts[cell],
		})
	}
	// most frequented cells first; first-seen order breaks ties
	slices.SortStableFunc(p.LocationPatterns, func(a, b LocationPattern) int {
		return b.Count - a.Count
	})
	if err := s.ProfilesTable.Upsert(p, now); err != nil {
		return nil, err
	}
	return p, nil
}

func roundCoord(v float64) float64 {
	return math.Round(v*100) / 100
}
