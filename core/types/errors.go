package types

import "errors"

// Sentinel errors named directly after the kinds spec.md §7 classifies,
// wrapped with github.com/pkg/errors at call sites that need a stack or
// extra context (e.g. which OutputRef, which peer).
var (
	// Validation errors
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrInvalidBlock         = errors.New("invalid block")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidProof         = errors.New("invalid proof")
	ErrRewardMismatch       = errors.New("block reward mismatch")
	ErrTimestampOutOfRange  = errors.New("timestamp out of range")
	ErrCheckpointViolation  = errors.New("checkpoint violation")

	// State conflicts
	ErrAlreadyLocked      = errors.New("output already locked")
	ErrNotUnspent         = errors.New("output not unspent")
	ErrDuplicateTx        = errors.New("duplicate transaction")

	// Resource limits
	ErrPoolFull          = errors.New("transaction pool full")
	ErrTooManyConnections = errors.New("too many connections")
	ErrRateLimited       = errors.New("rate limited")
	ErrInsufficientFee   = errors.New("insufficient fee")

	// Consensus outcomes
	ErrConsensusTimeout  = errors.New("consensus timeout")
	ErrConsensusRejected = errors.New("consensus rejected")

	// Chain anomalies
	ErrUnknownParent = errors.New("unknown parent block")
	ErrReorgTooDeep  = errors.New("reorg exceeds finalization depth")
	ErrForkDetected  = errors.New("fork detected")
	ErrInvalidLeader = errors.New("invalid leader for slot")

	// Transport
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrHandshakeMismatch   = errors.New("handshake mismatch")
	ErrPeerTimeout         = errors.New("peer timeout")
)
