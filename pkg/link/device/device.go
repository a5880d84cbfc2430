package device

import (
	"context"
	"io"

	"github.com/norasector/pktlink/pkg/frame"
)

// Device moves the encoded byte stream somewhere and hands whatever bits come back to
// the assembler. Start returns nil once tx is exhausted and everything received has
// been handed on.
type Device interface {
	Start(ctx context.Context, tx io.Reader, rx frame.Assembler) error
	Stop() error
}
