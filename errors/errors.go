package errors

import "fmt"

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrUnresolvedSender    = fmt.Errorf("sender is not registered")
	ErrUnresolvedRecipient = fmt.Errorf("recipient is not registered")
	ErrMalformedPayload    = fmt.Errorf("malformed payload")
	ErrUnknownEvent        = fmt.Errorf("unknown event")
	ErrUnknownCommand      = fmt.Errorf("unknown command")
	ErrSinkFull            = fmt.Errorf("sink buffer full")
	ErrSinkClosed          = fmt.Errorf("sink closed")
	ErrUnknownStoreBackend = fmt.Errorf("unknown store backend")
	ErrInvalidReplacement  = fmt.Errorf("replacement must be a single character")
)
