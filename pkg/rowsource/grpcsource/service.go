// Package grpcsource exposes row sources over gRPC and consumes them as
// push sources on the other end.
//
// The service is tabula.rowsource.v1.RowService with one server streaming
// method, StreamRows. The request is a wrapperspb.StringValue naming the
// dataset; every response is a structpb.ListValue of string values holding
// one row, header first.
package grpcsource

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/common/sequence"
	"github.com/tabuladb/tabula/pkg/stats"
	"github.com/tabuladb/tabula/pkg/stream"
	"github.com/tabuladb/tabula/pkg/telemetry"
)

const (
	ServiceName      = "tabula.rowsource.v1.RowService"
	StreamRowsMethod = "/" + ServiceName + "/StreamRows"
)

// ErrDatasetNotFound is returned when a catalog has no dataset by the name
var ErrDatasetNotFound = errors.New("dataset not found")

// RowServiceServer is the server API for RowService
type RowServiceServer interface {
	StreamRows(req *wrapperspb.StringValue, out grpc.ServerStream) error
}

func streamRowsHandler(srv any, out grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := out.RecvMsg(req); err != nil {
		return err
	}
	return srv.(RowServiceServer).StreamRows(req, out)
}

// ServiceDesc describes RowService for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RowServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamRows",
			Handler:       streamRowsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "tabula/rowsource/v1/rowsource.proto",
}

// Catalog resolves dataset names to fresh row sources
type Catalog interface {
	Open(name string) (stream.RowSource, error)
}

// CatalogFunc adapts a function to Catalog
type CatalogFunc func(name string) (stream.RowSource, error)

// Open calls f
func (f CatalogFunc) Open(name string) (stream.RowSource, error) {
	return f(name)
}

// ServerOptions configures a Server
type ServerOptions struct {
	HighWaterMark int
	Logger        log.Logger
	Stats         stats.Collector
	Telemetry     telemetry.Telemetry
}

// ServerOption is a functional option for a Server
type ServerOption func(*ServerOptions)

// WithServerHighWaterMark sets the adapter high-water mark per stream
func WithServerHighWaterMark(n int) ServerOption {
	return func(o *ServerOptions) {
		o.HighWaterMark = n
	}
}

// WithServerLogger sets the server logger
func WithServerLogger(logger log.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = logger
	}
}

// WithServerStats shares one collector across every served stream
func WithServerStats(collector stats.Collector) ServerOption {
	return func(o *ServerOptions) {
		o.Stats = collector
	}
}

// WithServerTelemetry records stream metrics for every served stream
func WithServerTelemetry(tel telemetry.Telemetry) ServerOption {
	return func(o *ServerOptions) {
		o.Telemetry = tel
	}
}

// Server serves the datasets of a Catalog. Each call pulls rows through a
// stream.Adapter, so a slow client pauses the underlying source.
type Server struct {
	catalog Catalog
	opts    ServerOptions
	logger  log.Logger
}

// NewServer creates a Server over catalog
func NewServer(catalog Catalog, options ...ServerOption) *Server {
	opts := ServerOptions{HighWaterMark: 256}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewAtomicCollector()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Server{
		catalog: catalog,
		opts:    opts,
		logger:  logger.WithField("component", telemetry.ComponentServer),
	}
}

// Register adds the service to gs
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Stats returns the collector shared by served streams
func (s *Server) Stats() stats.Provider {
	return s.opts.Stats
}

func encodeRow(row stream.Row) *structpb.ListValue {
	values := make([]*structpb.Value, len(row))
	for i, field := range row {
		values[i] = structpb.NewStringValue(field)
	}
	return &structpb.ListValue{Values: values}
}

// toStatus maps adapter errors onto gRPC status codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, ErrDatasetNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, stream.ErrUpstream):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, sequence.ErrProtocolViolation):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// StreamRows sends the header and then every row of the requested dataset
func (s *Server) StreamRows(req *wrapperspb.StringValue, out grpc.ServerStream) error {
	name := req.GetValue()
	src, err := s.catalog.Open(name)
	if err != nil {
		s.logger.Warn("Failed to open dataset %q: %v", name, err)
		return toStatus(err)
	}

	a := stream.New(src,
		stream.WithHighWaterMark(s.opts.HighWaterMark),
		stream.WithLogger(s.logger),
		stream.WithStats(s.opts.Stats),
		stream.WithTelemetry(s.opts.Telemetry),
		stream.WithSourceName(name),
	)
	defer a.Close()

	ctx := out.Context()
	columns, err := a.ColumnNames(ctx)
	if err != nil {
		return toStatus(err)
	}
	if err := out.SendMsg(encodeRow(columns)); err != nil {
		return err
	}

	sent := 0
	cur := a.Rows().Iterate()
	for {
		r, err := cur.Advance(ctx)
		if err != nil {
			return toStatus(err)
		}
		if r.Done {
			break
		}
		if err := out.SendMsg(encodeRow(r.Value)); err != nil {
			return err
		}
		sent++
	}
	s.logger.Debug("Streamed %d rows of %q", sent, name)
	return nil
}

// datasetError wraps a missing dataset name
func datasetError(name string) error {
	return fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
}

// MapCatalog serves sources built on demand by name
type MapCatalog map[string]func() (stream.RowSource, error)

// Open builds a fresh source for name
func (m MapCatalog) Open(name string) (stream.RowSource, error) {
	open, ok := m[name]
	if !ok {
		return nil, datasetError(name)
	}
	return open()
}
