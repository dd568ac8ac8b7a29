package gateway

import "errors"

var (
	ErrNotLinked        = errors.New("gateway: endpoints not linked")
	ErrAlreadyLinked    = errors.New("gateway: endpoints already linked")
	ErrLinkInProgress   = errors.New("gateway: linking already initiated")
	ErrNoStateRoot      = errors.New("gateway: no anchored state root for height")
	ErrNotProven        = errors.New("gateway: remote endpoint not proven at height")
	ErrInconsistentRoot = errors.New("gateway: re-proof resolved a different storage root")
	ErrInvalidAmount    = errors.New("gateway: amount must be positive")
	ErrZeroBeneficiary  = errors.New("gateway: zero beneficiary address")
	ErrFeeExceedsAmount = errors.New("gateway: fee exceeds transferred amount")
	ErrNotSender        = errors.New("gateway: caller is not the message sender")
)
