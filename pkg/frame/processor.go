package frame

import "context"

// Processor consumes what an Assembler queued until its input closes or ctx ends.
type Processor interface {
	Run(context.Context) error
}
