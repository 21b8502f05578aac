package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/localization/knowledge"
)

// Run is one replay or simulation session.
type Run struct {
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	Player     int       `json:"player"`
	ConfigJSON string    `json:"config_json,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// PoseRow is the published pose of one cycle.
type PoseRow struct {
	Cycle           uint64
	Timestamp       time.Time
	Pose            geom.Pose2D
	Valid           bool
	HypothesisCount int
	BestID          int
	LastTimeJumped  time.Time    // zero if the run never jumped
	Truth           *geom.Pose2D // nil when the ground truth is unknown
}

// HypothesisRow is one hypothesis snapshot of one cycle.
type HypothesisRow struct {
	Cycle         uint64
	ID            int
	ClusterID     int
	Pose          geom.Pose2D
	Variance      [3]float64 // diagonal of the covariance
	MeanEvalError float64
	Best          bool
}

// NewPoseRow converts a published estimate into its logged form.
func NewPoseRow(cycle uint64, ts time.Time, pos knowledge.RobotPosition, truth *geom.Pose2D) PoseRow {
	row := PoseRow{
		Cycle:           cycle,
		Timestamp:       ts,
		Pose:            pos.Pose,
		Valid:           pos.Valid,
		HypothesisCount: pos.HypothesisCount,
		BestID:          pos.BestID,
		LastTimeJumped:  pos.LastTimeJumped,
	}
	if truth != nil {
		t := *truth
		row.Truth = &t
	}
	return row
}

// NewHypothesisRow converts a hypothesis snapshot into its logged form.
func NewHypothesisRow(cycle uint64, h knowledge.HypothesisState) HypothesisRow {
	row := HypothesisRow{
		Cycle:         cycle,
		ID:            h.ID,
		ClusterID:     h.ClusterID,
		Pose:          h.Pose,
		MeanEvalError: h.MeanEvalError,
		Best:          h.Best,
	}
	if h.Cov != nil {
		row.Variance = [3]float64{h.Cov.At(0, 0), h.Cov.At(1, 1), h.Cov.At(2, 2)}
	}
	return row
}

// CreateRun inserts a new run. If RunID is empty, a UUID is generated; a
// zero StartedAt is set to now.
func (s *Store) CreateRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	var cfg interface{}
	if run.ConfigJSON != "" {
		cfg = run.ConfigJSON
	}
	return retryOnBusy(func() error {
		_, err := s.Exec(`
			INSERT INTO runs (run_id, name, player, config_json, started_at)
			VALUES (?, ?, ?, ?, ?)`,
			run.RunID, run.Name, run.Player, cfg, run.StartedAt.UnixNano(),
		)
		return err
	})
}

// Runs returns all runs, most recent first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.Query(`
		SELECT run_id, name, player, config_json, started_at
		FROM runs
		ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var cfg sql.NullString
		var started int64
		if err := rows.Scan(&r.RunID, &r.Name, &r.Player, &cfg, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.ConfigJSON = cfg.String
		r.StartedAt = time.Unix(0, started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordCycle stores the published pose and the hypothesis snapshots of one
// cycle in a single transaction. truth may be nil.
func (s *Store) RecordCycle(runID string, cycle uint64, ts time.Time, pos knowledge.RobotPosition,
	hyps []knowledge.HypothesisState, truth *geom.Pose2D) error {
	return retryOnBusy(func() error {
		tx, err := s.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var jump, truthX, truthY, truthRot interface{}
		if !pos.LastTimeJumped.IsZero() {
			jump = pos.LastTimeJumped.UnixNano()
		}
		if truth != nil {
			truthX, truthY, truthRot = truth.X, truth.Y, truth.Rotation
		}
		if _, err := tx.Exec(`
			INSERT INTO poses (
				run_id, cycle, timestamp_ns, x, y, rotation, valid,
				hypothesis_count, best_id, last_jump_ns, truth_x, truth_y, truth_rotation
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, cycle, ts.UnixNano(), pos.Pose.X, pos.Pose.Y, pos.Pose.Rotation, pos.Valid,
			pos.HypothesisCount, pos.BestID, jump, truthX, truthY, truthRot,
		); err != nil {
			return fmt.Errorf("insert pose: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO hypotheses (
				run_id, cycle, hypothesis_id, cluster_id, x, y, rotation,
				var_x, var_y, var_rotation, mean_eval_error, best
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare hypothesis insert: %w", err)
		}
		defer stmt.Close()

		for _, h := range hyps {
			row := NewHypothesisRow(cycle, h)
			if _, err := stmt.Exec(
				runID, cycle, row.ID, row.ClusterID, row.Pose.X, row.Pose.Y, row.Pose.Rotation,
				row.Variance[0], row.Variance[1], row.Variance[2], row.MeanEvalError, row.Best,
			); err != nil {
				return fmt.Errorf("insert hypothesis %d: %w", h.ID, err)
			}
		}
		return tx.Commit()
	})
}

// Poses returns the published poses of a run in cycle order.
func (s *Store) Poses(runID string) ([]PoseRow, error) {
	rows, err := s.Query(`
		SELECT cycle, timestamp_ns, x, y, rotation, valid, hypothesis_count, best_id,
		       last_jump_ns, truth_x, truth_y, truth_rotation
		FROM poses
		WHERE run_id = ?
		ORDER BY cycle`, runID)
	if err != nil {
		return nil, fmt.Errorf("query poses: %w", err)
	}
	defer rows.Close()

	var out []PoseRow
	for rows.Next() {
		var p PoseRow
		var ts int64
		var jump sql.NullInt64
		var tx, ty, tr sql.NullFloat64
		if err := rows.Scan(&p.Cycle, &ts, &p.Pose.X, &p.Pose.Y, &p.Pose.Rotation, &p.Valid,
			&p.HypothesisCount, &p.BestID, &jump, &tx, &ty, &tr); err != nil {
			return nil, fmt.Errorf("scan pose: %w", err)
		}
		p.Timestamp = time.Unix(0, ts)
		if jump.Valid {
			p.LastTimeJumped = time.Unix(0, jump.Int64)
		}
		if tx.Valid && ty.Valid && tr.Valid {
			truth := geom.NewPose2D(tx.Float64, ty.Float64, tr.Float64)
			p.Truth = &truth
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Hypotheses returns the hypothesis snapshots of one cycle of a run,
// ordered by hypothesis ID.
func (s *Store) Hypotheses(runID string, cycle uint64) ([]HypothesisRow, error) {
	rows, err := s.Query(`
		SELECT cycle, hypothesis_id, cluster_id, x, y, rotation,
		       var_x, var_y, var_rotation, mean_eval_error, best
		FROM hypotheses
		WHERE run_id = ? AND cycle = ?
		ORDER BY hypothesis_id`, runID, cycle)
	if err != nil {
		return nil, fmt.Errorf("query hypotheses: %w", err)
	}
	defer rows.Close()

	var out []HypothesisRow
	for rows.Next() {
		var h HypothesisRow
		if err := rows.Scan(&h.Cycle, &h.ID, &h.ClusterID, &h.Pose.X, &h.Pose.Y, &h.Pose.Rotation,
			&h.Variance[0], &h.Variance[1], &h.Variance[2], &h.MeanEvalError, &h.Best); err != nil {
			return nil, fmt.Errorf("scan hypothesis: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, its log.
func (s *Store) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		_, err := s.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
		return err
	})
}
