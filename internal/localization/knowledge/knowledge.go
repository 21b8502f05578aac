// Package knowledge runs the multi-hypothesis self-localization. Once per
// control cycle Update consumes a percept.Frame and publishes the robot
// pose: the hypothesis collection is re-seeded on referee transitions,
// predicted with odometry, corrected with landmarks, merged, evaluated and
// pruned, and the best hypothesis is published.
//
// The collection is never empty. The best hypothesis is tracked by ID so
// that merges and prunes cannot leave a dangling reference.
package knowledge

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/gamecontroller"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/localization/hypothesis"
	"github.com/banshee-data/fieldpose/internal/percept"
	"gonum.org/v1/gonum/mat"
)

// RobotPosition is the published estimate.
type RobotPosition struct {
	Pose           geom.Pose2D
	Valid          bool
	LastTimeJumped time.Time

	HypothesisCount int
	BestID          int
}

// HypothesisState is a read-only snapshot of one hypothesis.
type HypothesisState struct {
	ID            int
	ClusterID     int
	Pose          geom.Pose2D
	Cov           *mat.SymDense
	MeanEvalError float64
	Best          bool
}

// DebugCollector receives pipeline internals for inspection. All methods
// are called with the knowledge lock held.
type DebugCollector interface {
	IsEnabled() bool
	RecordReset(reason string, count int)
	RecordMerge(keptID, mergedID int)
	RecordPrune(id int, reason string)
	RecordHypothesis(id, clusterID int, x, y, rotation, evalError float64, best bool)
}

// Knowledge owns the hypothesis collection.
type Knowledge struct {
	Config Config

	// DebugCollector captures pipeline internals (optional).
	DebugCollector DebugCollector

	field  *field.Info
	player percept.Player
	src    rand.Source

	hyps   []*hypothesis.Hypothesis
	bestID int
	nextID int

	prevGame      gamecontroller.State
	pickedUpInSet bool

	// Alternates the penalty re-entry side across resets.
	penalizedIndex int

	// Per-cycle flags feeding the validity of the published pose.
	resetThisCycle    bool
	pickedUpThisCycle bool

	position      RobotPosition
	havePublished bool
	cycles        uint64

	mu sync.RWMutex
}

// New creates the localization for one robot. It starts with the sideline
// entry hypotheses of the INITIAL state. src drives spawn noise; nil spawns
// exactly on the nominal poses.
func New(fi *field.Info, player percept.Player, cfg Config, src rand.Source) (*Knowledge, error) {
	if fi == nil {
		return nil, errors.New("field info is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid localization config: %w", err)
	}
	k := &Knowledge{
		Config: cfg,
		field:  fi,
		player: player,
		src:    src,
		nextID: 1,
	}
	k.resetInitial()
	k.resetThisCycle = false
	p := k.best().Pose()
	k.position = RobotPosition{Pose: p, HypothesisCount: len(k.hyps), BestID: k.bestID}
	return k, nil
}

// UpdateConfig applies fn to the configuration under the knowledge lock.
func (k *Knowledge) UpdateConfig(fn func(*Config)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	fn(&k.Config)
}

// Position returns the most recently published estimate.
func (k *Knowledge) Position() RobotPosition {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.position
}

// Cycles returns the number of processed cycles.
func (k *Knowledge) Cycles() uint64 {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cycles
}

// Hypotheses returns snapshots of the live hypotheses in collection order.
func (k *Knowledge) Hypotheses() []HypothesisState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]HypothesisState, 0, len(k.hyps))
	for _, h := range k.hyps {
		cov := mat.NewSymDense(3, nil)
		cov.CopySym(h.Filter.Cov)
		out = append(out, HypothesisState{
			ID:            h.ID,
			ClusterID:     h.ClusterID,
			Pose:          h.Pose(),
			Cov:           cov,
			MeanEvalError: h.MeanEvalError,
			Best:          h.ID == k.bestID,
		})
	}
	return out
}

// Update runs one localization cycle and returns the published estimate.
func (k *Knowledge) Update(frame percept.Frame) RobotPosition {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.cycles++
	k.resetThisCycle = false
	k.pickedUpThisCycle = false

	k.updateState(frame)
	k.odometryPredict(frame.Odometry)

	var lines []percept.Line
	trusted := k.measurementsTrusted(frame)
	if trusted {
		lines = k.gatedLines(frame)
		k.measurementUpdate(frame, lines)
	}
	k.mergeHypotheses()
	if trusted {
		k.generateNewHypotheses(frame)
	}
	k.evaluateHypotheses(lines)
	k.publishPoseEstimate(frame)
	k.recordHypotheses()

	return k.position
}

// lookup resolves a hypothesis ID; nil if it is no longer live.
func (k *Knowledge) lookup(id int) *hypothesis.Hypothesis {
	for _, h := range k.hyps {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// best returns the best hypothesis, repairing the reference if needed.
func (k *Knowledge) best() *hypothesis.Hypothesis {
	if h := k.lookup(k.bestID); h != nil {
		return h
	}
	k.bestID = k.hyps[0].ID
	return k.hyps[0]
}

func (k *Knowledge) debugEnabled() bool {
	return k.DebugCollector != nil && k.DebugCollector.IsEnabled()
}

func (k *Knowledge) recordHypotheses() {
	if !k.debugEnabled() {
		return
	}
	for _, h := range k.hyps {
		p := h.Pose()
		k.DebugCollector.RecordHypothesis(h.ID, h.ClusterID, p.X, p.Y, p.Rotation, h.MeanEvalError, h.ID == k.bestID)
	}
}
