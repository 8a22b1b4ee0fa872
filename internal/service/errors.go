package service

import "errors"

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrSlotAvailable       = errors.New("slot is free, book it directly")
	ErrResourceUnavailable = errors.New("resource is not available for the requested time")
	ErrPastStart           = errors.New("start time is in the past")
	ErrTooFarAhead         = errors.New("start time is too far in the future")
	ErrRateLimited         = errors.New("too many booking changes, try again later")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNoProofOfUse        = errors.New("only resources you have used can be reviewed")
)
