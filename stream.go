package journeys

import (
	"context"
	"errors"
	"sync"

	"tidbyt.dev/journeys/model"
)

// Journeys produced in the background as they're found. Iterate like
// sql.Rows:
//
//	defer stream.Close()
//	for stream.Next() {
//		journey := stream.Journey()
//	}
//	err := stream.Err()
type Stream struct {
	parent   context.Context
	cancel   context.CancelFunc
	journeys chan *model.Journey
	done     chan struct{}
	onClose  func(count int, err error)

	current *model.Journey
	count   int
	err     error

	closeOnce sync.Once
}

type produceFunc func(ctx context.Context, yield func(*model.Journey) bool) error

func newStream(ctx context.Context, produce produceFunc, onClose func(count int, err error)) *Stream {
	child, cancel := context.WithCancel(ctx)
	s := &Stream{
		parent:   ctx,
		cancel:   cancel,
		journeys: make(chan *model.Journey),
		done:     make(chan struct{}),
		onClose:  onClose,
	}

	go func() {
		defer close(s.done)
		defer close(s.journeys)

		s.err = produce(child, func(j *model.Journey) bool {
			select {
			case s.journeys <- j:
				return true
			case <-child.Done():
				return false
			}
		})
	}()

	return s
}

// A stream with nothing in it.
func emptyStream(ctx context.Context, onClose func(count int, err error)) *Stream {
	return newStream(ctx, func(context.Context, func(*model.Journey) bool) error {
		return nil
	}, onClose)
}

// Advances to the next journey. Returns false when there are no more,
// or on error.
func (s *Stream) Next() bool {
	j, ok := <-s.journeys
	if !ok {
		<-s.done
		s.current = nil
		return false
	}
	s.current = j
	s.count++
	return true
}

func (s *Stream) Journey() *model.Journey {
	return s.current
}

// The error that ended the stream, if any. Only meaningful once Next
// has returned false, or after Close.
func (s *Stream) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}

	// Cut short by Close rather than by the caller's context
	if errors.Is(s.err, context.Canceled) && s.parent.Err() == nil {
		return nil
	}
	return s.err
}

// Stops the search and waits for it to wind down. Safe to call more
// than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.journeys {
		}
		<-s.done
		if s.onClose != nil {
			s.onClose(s.count, s.Err())
		}
	})
	return nil
}

// Reads every remaining journey and closes the stream.
func (s *Stream) Collect() ([]*model.Journey, error) {
	defer s.Close()

	journeys := []*model.Journey{}
	for s.Next() {
		journeys = append(journeys, s.Journey())
	}
	return journeys, s.Err()
}
