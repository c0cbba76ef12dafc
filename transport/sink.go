package transport

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"sync"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink buffers encoded frames for the write loop of one socket.
// The frames channel is never closed: done tells producers the socket is gone.
type ConnectionSink struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		frames: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume never waits: a full buffer drops the frame so one stalled
// socket cannot hold up delivery to the others.
func (s *ConnectionSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrSinkClosed
	default:
	}

	frame, err := Encode(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Name(), err)
	}

	select {
	case s.frames <- frame:
		return nil
	case <-s.done:
		return errors.ErrSinkClosed
	default:
		return errors.ErrSinkFull
	}
}

func (s *ConnectionSink) Frames() <-chan []byte {
	return s.frames
}

func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}
