// Package debug provides instrumentation for the self-localization.
// The DebugCollector captures pipeline internals (resets, merges, prunes,
// per-hypothesis state) for visualisation and tuning.
package debug

// Pre-allocation capacities for debug frame slices.
// Sized for the default hypothesis limit of 12.
const (
	defaultHypothesisCapacity = 12
	defaultEventCapacity      = 4
)

// DebugCollector accumulates debug artifacts during a single cycle.
// When enabled, it records which hypotheses were re-seeded, merged or
// dropped and the state of every surviving hypothesis.
//
// The collector is stateful: call BeginFrame before Knowledge.Update, then
// Emit at cycle completion to extract the artifacts. Reset aborts a cycle.
type DebugCollector struct {
	enabled bool
	current *DebugFrame
}

// DebugFrame contains all debug artifacts for a single cycle.
type DebugFrame struct {
	FrameID uint64

	Resets     []ResetRecord
	Merges     []MergeRecord
	Prunes     []PruneRecord
	Hypotheses []HypothesisRecord
}

// ResetRecord captures a re-seed of the whole hypothesis collection.
type ResetRecord struct {
	Reason string
	Count  int
}

// MergeRecord captures one hypothesis absorbed into another.
type MergeRecord struct {
	KeptID   int
	MergedID int
}

// PruneRecord captures one dropped hypothesis.
type PruneRecord struct {
	ID     int
	Reason string
}

// HypothesisRecord is the state of a hypothesis at the end of a cycle.
type HypothesisRecord struct {
	ID        int
	ClusterID int
	X         float64
	Y         float64
	Rotation  float64
	EvalError float64 // -1 while unevaluated
	Best      bool
}

// NewDebugCollector creates a collector that's initially disabled.
// Call SetEnabled(true) to begin collecting artifacts.
func NewDebugCollector() *DebugCollector {
	return &DebugCollector{}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all Record*() calls are no-ops.
func (c *DebugCollector) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// IsEnabled returns true if the collector is actively recording.
func (c *DebugCollector) IsEnabled() bool {
	return c.enabled
}

// BeginFrame initialises collection for a new cycle.
// Must be called before any Record*() calls.
func (c *DebugCollector) BeginFrame(frameID uint64) {
	if !c.enabled {
		return
	}
	c.current = &DebugFrame{
		FrameID:    frameID,
		Resets:     make([]ResetRecord, 0, 1),
		Merges:     make([]MergeRecord, 0, defaultEventCapacity),
		Prunes:     make([]PruneRecord, 0, defaultEventCapacity),
		Hypotheses: make([]HypothesisRecord, 0, defaultHypothesisCapacity),
	}
}

// RecordReset captures a re-seed of the collection.
func (c *DebugCollector) RecordReset(reason string, count int) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Resets = append(c.current.Resets, ResetRecord{Reason: reason, Count: count})
}

// RecordMerge captures mergedID being absorbed into keptID.
func (c *DebugCollector) RecordMerge(keptID, mergedID int) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Merges = append(c.current.Merges, MergeRecord{KeptID: keptID, MergedID: mergedID})
}

// RecordPrune captures a dropped hypothesis.
func (c *DebugCollector) RecordPrune(id int, reason string) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Prunes = append(c.current.Prunes, PruneRecord{ID: id, Reason: reason})
}

// RecordHypothesis captures a surviving hypothesis after evaluation.
func (c *DebugCollector) RecordHypothesis(id, clusterID int, x, y, rotation, evalError float64, best bool) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Hypotheses = append(c.current.Hypotheses, HypothesisRecord{
		ID:        id,
		ClusterID: clusterID,
		X:         x,
		Y:         y,
		Rotation:  rotation,
		EvalError: evalError,
		Best:      best,
	})
}

// Emit returns the accumulated debug frame and prepares for the next cycle.
// Returns nil if collection is disabled or no frame was begun.
func (c *DebugCollector) Emit() *DebugFrame {
	if !c.enabled || c.current == nil {
		return nil
	}
	frame := c.current
	c.current = nil // caller must BeginFrame again
	return frame
}

// Reset clears any pending artifacts without emitting them.
func (c *DebugCollector) Reset() {
	c.current = nil
}

// Best returns the record flagged as best, if any.
func (f *DebugFrame) Best() (HypothesisRecord, bool) {
	for _, h := range f.Hypotheses {
		if h.Best {
			return h, true
		}
	}
	return HypothesisRecord{}, false
}
