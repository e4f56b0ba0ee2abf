package slot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlotAt(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	s := NewScheduler(genesis, 10*time.Second, NewClock())

	assert.Equal(t, uint64(0), s.SlotAt(genesis))
	assert.Equal(t, uint64(1), s.SlotAt(genesis.Add(10*time.Second)))
	assert.Equal(t, uint64(5), s.SlotAt(genesis.Add(59*time.Second)))
	assert.Equal(t, uint64(0), s.SlotAt(genesis.Add(-time.Hour)))
}

func TestValidateTimestampBounds(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	s := NewScheduler(genesis, DefaultSlotDuration, NewClock())

	expected := s.ExpectedTimestamp(3)
	assert.True(t, s.ValidateTimestamp(expected, 3, 3))
	assert.True(t, s.ValidateTimestamp(expected.Add(119*time.Second), 3, 3))
	assert.False(t, s.ValidateTimestamp(expected.Add(121*time.Second), 3, 3))

	driftTooFar := s.genesisTime.Add(time.Duration(3) * DefaultSlotDuration).Add(TimestampDriftCap + time.Second)
	assert.False(t, s.ValidateTimestamp(driftTooFar, 3, 3))
}

func TestPhaseTracking(t *testing.T) {
	s := NewScheduler(time.Now(), DefaultSlotDuration, NewClock())
	s.SetPhase(5, PhaseProposing)
	slotNum, phase := s.Phase()
	assert.Equal(t, uint64(5), slotNum)
	assert.Equal(t, PhaseProposing, phase)
}
