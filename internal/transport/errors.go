package transport

import (
	"errors"

	"github.com/danmuck/spilink/internal/protocol/frame"
)

var (
	ErrInvalidArgument     = errors.New("transport: invalid argument")
	ErrOversizedFrame      = frame.ErrOversizedFrame
	ErrAllocationFailure   = errors.New("transport: allocation failure")
	ErrMalformedFrame      = frame.ErrMalformed
	ErrTransactionFailure  = errors.New("transport: transaction failure")
	ErrResourceAcquisition = errors.New("transport: resource acquisition failure")
)
