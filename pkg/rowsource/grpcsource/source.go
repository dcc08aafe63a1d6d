package grpcsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/stream"
)

// ErrAlreadyStarted is reported when Start is called more than once
var ErrAlreadyStarted = errors.New("remote source already started")

// Option is a functional option for a Source
type Option func(*Source)

// WithLogger sets the source logger
func WithLogger(logger log.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithCallOptions adds options to the StreamRows call
func WithCallOptions(opts ...grpc.CallOption) Option {
	return func(s *Source) {
		s.callOpts = append(s.callOpts, opts...)
	}
}

// Source is a push source over a remote StreamRows call. The header arrives
// as the first row. Pause blocks the receive loop, so HTTP/2 flow control
// carries backpressure to the server.
type Source struct {
	conn     grpc.ClientConnInterface
	dataset  string
	callOpts []grpc.CallOption
	logger   log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	started bool
	paused  bool
	closed  bool
	done    chan struct{}
}

// NewSource creates a Source streaming dataset over conn
func NewSource(conn grpc.ClientConnInterface, dataset string, options ...Option) *Source {
	s := &Source{
		conn:    conn,
		dataset: dataset,
		done:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetDefaultLogger()
	}
	s.logger = s.logger.WithFields(map[string]any{"component": "grpcsource", "dataset": dataset})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start opens the call and begins receiving on a new goroutine
func (s *Source) Start(h stream.RowHandler) {
	s.mu.Lock()
	started := s.started
	s.started = true
	s.mu.Unlock()

	if started {
		go h.OnError(ErrAlreadyStarted)
		return
	}
	go s.run(h)
}

// Pause stops receiving after the row in flight
func (s *Source) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume continues receiving
func (s *Source) Resume() {
	s.mu.Lock()
	s.paused = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Close cancels the call
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.cancel()
	return nil
}

// Done is closed when the receive loop exits
func (s *Source) Done() <-chan struct{} {
	return s.done
}

func (s *Source) proceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.closed {
		s.cond.Wait()
	}
	return !s.closed
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fromStatus maps a call status back onto package errors
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	}
	return err
}

func decodeRow(msg *structpb.ListValue) stream.Row {
	row := make(stream.Row, len(msg.GetValues()))
	for i, v := range msg.GetValues() {
		row[i] = v.GetStringValue()
	}
	return row
}

func (s *Source) run(h stream.RowHandler) {
	defer close(s.done)

	fail := func(err error) {
		if !s.isClosed() {
			s.logger.Warn("Remote stream failed: %v", err)
			h.OnError(fromStatus(err))
		}
	}

	call, err := s.conn.NewStream(s.ctx, &ServiceDesc.Streams[0], StreamRowsMethod, s.callOpts...)
	if err != nil {
		fail(err)
		return
	}
	if err := call.SendMsg(wrapperspb.String(s.dataset)); err != nil && err != io.EOF {
		fail(err)
		return
	}
	if err := call.CloseSend(); err != nil {
		fail(err)
		return
	}

	received := 0
	for s.proceed() {
		msg := new(structpb.ListValue)
		if err := call.RecvMsg(msg); err != nil {
			if err == io.EOF {
				if !s.isClosed() {
					s.logger.Debug("Received %d rows", received)
					h.OnComplete()
				}
				return
			}
			fail(err)
			return
		}
		received++
		h.OnRow([]stream.Row{decodeRow(msg)})
	}
}

// Dial connects to a row server. Without options the connection is
// insecure with client keepalives.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                30 * time.Second,
				Timeout:             10 * time.Second,
				PermitWithoutStream: true,
			}),
		}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	return conn, nil
}
