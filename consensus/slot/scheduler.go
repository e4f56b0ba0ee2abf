package slot

import (
	"sync"
	"time"

	"github.com/aristanetworks/goarista/monotime"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/log"
)

var logger = log.NewModuleLogger(log.ModuleSlot)

// DefaultSlotDuration is SLOT_DURATION (spec.md §6.3): 10 minutes.
const DefaultSlotDuration = 600 * time.Second

// LeaderTimeout is the liveness-fallback grace period beyond a slot's
// boundary (spec.md §4.6, §6.3).
const LeaderTimeout = 5 * time.Second

// TimestampSlotTolerance bounds |timestamp - expected_slot_time|
// (spec.md §4.6).
const TimestampSlotTolerance = 120 * time.Second

// TimestampDriftCap bounds timestamp - (genesis + height*SLOT_DURATION)
// (spec.md §4.6: the schedule-drift cap).
const TimestampDriftCap = 3600 * time.Second

// Phase is a slot's position in the per-slot state machine of spec.md
// §4.6: Idle -> Sampling_Leader -> {Proposing | Awaiting} -> Validating
// -> Committed | Skipped.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSamplingLeader
	PhaseProposing
	PhaseAwaiting
	PhaseValidating
	PhaseCommitted
	PhaseSkipped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSamplingLeader:
		return "sampling_leader"
	case PhaseProposing:
		return "proposing"
	case PhaseAwaiting:
		return "awaiting"
	case PhaseValidating:
		return "validating"
	case PhaseCommitted:
		return "committed"
	case PhaseSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Clock anchors a monotonic timer (goarista/monotime, already indirect
// in the teacher's dependency graph) to a wall-clock origin taken once
// at construction, so slot math tracks elapsed real time without being
// skewed by later system-clock adjustments.
type Clock struct {
	wallOrigin time.Time
	monoOrigin uint64
}

// NewClock anchors Now() to the current wall-clock time.
func NewClock() *Clock {
	return &Clock{wallOrigin: time.Now(), monoOrigin: monotime.Now()}
}

// Now returns the current time, derived from elapsed monotonic
// nanoseconds since construction rather than re-reading the OS clock.
func (c *Clock) Now() time.Time {
	elapsed := time.Duration(monotime.Now() - c.monoOrigin)
	return c.wallOrigin.Add(elapsed)
}

// Scheduler computes slot numbers and drives the per-slot phase.
type Scheduler struct {
	genesisTime  time.Time
	slotDuration time.Duration
	clock        *Clock

	mu    sync.Mutex
	phase Phase
	slot  uint64
}

// NewScheduler creates a scheduler anchored at genesisTime.
func NewScheduler(genesisTime time.Time, slotDuration time.Duration, clock *Clock) *Scheduler {
	if slotDuration <= 0 {
		slotDuration = DefaultSlotDuration
	}
	if clock == nil {
		clock = NewClock()
	}
	return &Scheduler{genesisTime: genesisTime, slotDuration: slotDuration, clock: clock, phase: PhaseIdle}
}

// SlotAt returns slot(t) = (t - genesis_time) / SLOT_DURATION
// (spec.md §4.6). A t before genesis returns slot 0.
func (s *Scheduler) SlotAt(t time.Time) uint64 {
	d := t.Sub(s.genesisTime)
	if d < 0 {
		return 0
	}
	return uint64(d / s.slotDuration)
}

// CurrentSlot returns SlotAt(s.clock.Now()).
func (s *Scheduler) CurrentSlot() uint64 { return s.SlotAt(s.clock.Now()) }

// SlotBoundary returns the wall-clock instant slot begins.
func (s *Scheduler) SlotBoundary(slotNum uint64) time.Time {
	return s.genesisTime.Add(time.Duration(slotNum) * s.slotDuration)
}

// ExpectedTimestamp is the canonical expected block time for a slot,
// used by both tolerance checks of spec.md §4.6.
func (s *Scheduler) ExpectedTimestamp(slotNum uint64) time.Time { return s.SlotBoundary(slotNum) }

// ValidateTimestamp enforces the two bounds of spec.md §4.6:
// |timestamp - expected_slot_time| <= 120s, and
// timestamp - (genesis_time + height*SLOT_DURATION) <= 3600s.
func (s *Scheduler) ValidateTimestamp(timestamp time.Time, slotNum uint64, height uint64) bool {
	expected := s.ExpectedTimestamp(slotNum)
	diff := timestamp.Sub(expected)
	if diff < 0 {
		diff = -diff
	}
	if diff > TimestampSlotTolerance {
		return false
	}
	scheduleTime := s.genesisTime.Add(time.Duration(height) * s.slotDuration)
	drift := timestamp.Sub(scheduleTime)
	if drift > TimestampDriftCap {
		return false
	}
	return true
}

// SetPhase transitions the scheduler's current-slot phase. Callers
// drive the Idle -> Sampling_Leader -> {Proposing|Awaiting} ->
// Validating -> Committed|Skipped sequence; invalid transitions are the
// caller's bug, not something this type polices, matching the
// lightweight phase trackers elsewhere in the teacher's consensus code.
func (s *Scheduler) SetPhase(slotNum uint64, p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot = slotNum
	s.phase = p
	logger.Debug("slot phase transition", "slot", slotNum, "phase", p.String())
}

// Phase returns the tracked (slot, phase) pair.
func (s *Scheduler) Phase() (uint64, Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot, s.phase
}

// DeadlineForSlot returns the wall-clock instant the leader timeout
// fires for slotNum: the slot boundary plus LeaderTimeout.
func (s *Scheduler) DeadlineForSlot(slotNum uint64) time.Time {
	return s.SlotBoundary(slotNum).Add(LeaderTimeout)
}

// PrevBlockSeed is a convenience alias documenting the VRF input's
// first component for a slot, kept alongside the scheduler since the
// slot number is the second half of the same seed (spec.md §4.6).
func PrevBlockSeed(prevBlockHash common.Hash) common.Hash { return prevBlockHash }
