package domain

import "errors"

// Error taxonomy shared by the service and realtime layers. Callers branch
// with errors.Is; lower layers wrap causes with fmt.Errorf("%w: %v").
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRoomNotFound = errors.New("room not found")
	ErrBadRequest   = errors.New("bad request")
	ErrPersistence  = errors.New("persistence failure")
	ErrInternal     = errors.New("internal error")
)
