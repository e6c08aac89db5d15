package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrInvalidOrderSize       = errors.New("invalid order size")
	ErrChainTooLong           = errors.New("chain exceeds maximum step count")
	ErrChainStepFailed        = errors.New("chain step failed")
	ErrLeverageExceedsCeiling = errors.New("leverage exceeds ceiling")
	ErrUndercollateralized    = errors.New("position undercollateralized")
	ErrStakeTooLarge          = errors.New("stake exceeds maximum")
	ErrProofInvalid           = errors.New("resolution proof invalid")
	ErrQuorumNotReached       = errors.New("attestation quorum not reached")
	ErrMarketExpired          = errors.New("market expired")
	ErrMarketResolved         = errors.New("market already resolved")
	ErrMarketNotOpen          = errors.New("market not open")
	ErrEmergencyPaused        = errors.New("trading paused")
	ErrInvalidOutcome         = errors.New("invalid outcome index")
	ErrPositionClosed         = errors.New("position already closed")
	ErrLockHeld               = errors.New("lock already held")
	ErrWSDisconnect           = errors.New("websocket disconnected")
)
