package sampling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/core/types"
	"github.com/slotchain/slotchain/core/validator"
	"github.com/slotchain/slotchain/crypto"
)

// unanimousQuerier always answers with a fixed preference, simulating
// every sampled validator already having converged.
type unanimousQuerier struct{ preference common.Hash }

func (q unanimousQuerier) QueryPreference(ctx context.Context, v *types.Validator, conflictSet []common.Hash) (common.Hash, bool) {
	return q.preference, true
}

func testRegistry(t *testing.T, n int) *validator.Registry {
	t.Helper()
	r := validator.NewRegistry()
	for i := 0; i < n; i++ {
		pk, _, err := crypto.GenerateKey()
		require.NoError(t, err)
		r.Register(&types.Validator{Address: crypto.Address(pk), Tier: types.TierGold}, 1)
	}
	return r
}

func TestRunAcceptsUnanimousPreference(t *testing.T) {
	reg := testRegistry(t, 5)
	var candidate common.Hash
	candidate[0] = 7
	_, sk, err := crypto.GenerateKey()
	require.NoError(t, err)

	params := Params{K: 3, Alpha: 2, Beta: 3, MaxRounds: 10, QueryTimeout: time.Second}
	engine := New(params, reg, unanimousQuerier{preference: candidate}, sk)

	outcome, err := engine.Run(context.Background(), candidate, nil)
	require.NoError(t, err)
	assert.Equal(t, candidate, outcome.Winner)
	assert.Equal(t, 3, outcome.Rounds)
}

// silentQuerier never responds, forcing the engine to exhaust max_rounds.
type silentQuerier struct{}

func (silentQuerier) QueryPreference(ctx context.Context, v *types.Validator, conflictSet []common.Hash) (common.Hash, bool) {
	return common.Hash{}, false
}

func TestRunTimesOutWithNoResponses(t *testing.T) {
	reg := testRegistry(t, 3)
	var candidate common.Hash
	candidate[0] = 9
	_, sk, err := crypto.GenerateKey()
	require.NoError(t, err)

	params := Params{K: 3, Alpha: 2, Beta: 3, MaxRounds: 2, QueryTimeout: 50 * time.Millisecond}
	engine := New(params, reg, silentQuerier{}, sk)

	_, err = engine.Run(context.Background(), candidate, nil)
	assert.ErrorIs(t, err, types.ErrConsensusTimeout)
}

func TestRunWithNoActiveValidators(t *testing.T) {
	reg := validator.NewRegistry()
	var candidate common.Hash
	_, sk, err := crypto.GenerateKey()
	require.NoError(t, err)

	params := Params{K: 3, Alpha: 2, Beta: 3, MaxRounds: 5, QueryTimeout: time.Second}
	engine := New(params, reg, unanimousQuerier{preference: candidate}, sk)

	_, err = engine.Run(context.Background(), candidate, nil)
	assert.ErrorIs(t, err, types.ErrConsensusTimeout)
}
