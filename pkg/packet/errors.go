package packet

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAccessCode    = errors.New("packet: invalid access code")
	ErrInvalidSymbolMapping = errors.New("packet: invalid symbol mapping")
	ErrPayloadTooLarge      = errors.New("packet: payload too large")
	ErrSourceClosed         = errors.New("packet: message source closed")

	ErrShortPacket    = errors.New("packet: short packet")
	ErrHeaderMismatch = errors.New("packet: header check failed")
	ErrLengthMismatch = errors.New("packet: length inconsistent with data")
	ErrCRCMismatch    = errors.New("packet: crc mismatch")
)

// DecodeFailure classifies a packet that could not be decoded. It is an expected
// per-packet outcome, not a fault in the pipeline.
type DecodeFailure struct {
	Reason error
	Detail string
}

func (d *DecodeFailure) Error() string {
	if d.Detail == "" {
		return d.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", d.Reason, d.Detail)
}

func (d *DecodeFailure) Unwrap() error {
	return d.Reason
}

func decodeFailure(reason error, format string, args ...interface{}) error {
	return &DecodeFailure{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
