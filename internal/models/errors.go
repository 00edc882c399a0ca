package models

import "errors"

// Validation errors for models
var (
	// Entity errors
	ErrInvalidEntityName = errors.New("entity name is required")

	// Pulse log errors
	ErrInvalidLogEntity   = errors.New("pulse log must reference an entity")
	ErrInvalidLogStatus   = errors.New("invalid pulse log status")
	ErrInvalidWakeType    = errors.New("invalid wake type")
	ErrInvalidSkipReason  = errors.New("skip reason requires skipped status")
	ErrInvalidEndSignal   = errors.New("end signal not allowed for skipped status")
	ErrNegativeChainDepth = errors.New("chain depth must be >= 0")

	// Wake job errors
	ErrInvalidJobEntity = errors.New("wake job must reference an entity")
	ErrInvalidJobStatus = errors.New("invalid wake job status")
)
