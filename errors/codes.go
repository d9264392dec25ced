package errors

// Code classifies an Error for logging and for deciding whether the cause is
// the caller or the server.
type Code string

const (
	// ErrBadRequest is used when a request or message is malformed.
	ErrBadRequest Code = "bad-request"
	// ErrCommunication is used for transport failures like a failed connect or a
	// dropped connection.
	ErrCommunication Code = "communication"
	// ErrFatal is used for unrecoverable errors during boot. Logging an ErrFatal
	// error terminates the process.
	ErrFatal Code = "fatal"
	// ErrInternal is used for bugs and unexpected conditions on our side.
	ErrInternal Code = "internal"
	// ErrInvalidTransition is used when an operation is rejected because the
	// current state does not allow it, like firing while reloading or defusing a
	// spike that was never planted. The operation is a no-op.
	ErrInvalidTransition Code = "invalid-transition"
	// ErrNotFound is used when an entity like a player, character, weapon or
	// ability is not known.
	ErrNotFound Code = "not-found"
	// ErrProtocolViolation is used when a peer sends messages that violate the
	// wire contract.
	ErrProtocolViolation Code = "protocol-violation"
	// ErrUnexpected is used for errors that were not created by us.
	ErrUnexpected Code = "unexpected"
)
