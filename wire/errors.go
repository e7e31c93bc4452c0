package wire

import "errors"

// Frame and decode errors, checked with errors.Is the way broker's own
// sentinels are (ErrInvalidHeaderLength, ErrNoPayloadFound, ...).
var (
	ErrFrameTooLarge     = errors.New("wire: frame exceeds max frame size")
	ErrTruncatedFrame    = errors.New("wire: truncated frame")
	ErrMalformedPayload  = errors.New("wire: malformed payload")
	ErrConnectionClosed  = errors.New("wire: connection closed")
	ErrUnknownMessageKind = errors.New("wire: unknown message kind")
	ErrBeforeHandshake   = errors.New("wire: message received before handshake completed")
)
