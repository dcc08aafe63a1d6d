package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/openkvlab/boltdb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/config"
	"github.com/tabuladb/tabula/pkg/rowsource/boltsource"
	"github.com/tabuladb/tabula/pkg/rowsource/csvsource"
	"github.com/tabuladb/tabula/pkg/rowsource/grpcsource"
	"github.com/tabuladb/tabula/pkg/stats"
	"github.com/tabuladb/tabula/pkg/stream"
	"github.com/tabuladb/tabula/pkg/telemetry"
)

// boltFileName is the bolt file inside the data directory whose buckets are
// served as datasets
const boltFileName = "tabula.db"

// dataCatalog serves the files of a directory as CSV datasets and the
// buckets of its bolt file, if any, as stored datasets. Files win over
// buckets of the same name.
type dataCatalog struct {
	dir    string
	cfg    *config.Config
	db     *boltdb.DB
	logger log.Logger
}

func newDataCatalog(cfg *config.Config, logger log.Logger) (*dataCatalog, error) {
	c := &dataCatalog{dir: cfg.Server.DataDir, cfg: cfg, logger: logger}

	path := filepath.Join(c.dir, boltFileName)
	if _, err := os.Stat(path); err == nil {
		db, err := boltdb.Open(path, 0600, &boltdb.Options{Timeout: time.Second, ReadOnly: true})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		c.db = db
	}
	return c, nil
}

// Open resolves name to a fresh row source
func (c *dataCatalog) Open(name string) (stream.RowSource, error) {
	if name == "" || name == boltFileName || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: %q", grpcsource.ErrDatasetNotFound, name)
	}

	path := filepath.Join(c.dir, name)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		options := append(csvsource.FromConfig(c.cfg), csvsource.WithLogger(c.logger))
		return csvsource.Open(path, options...)
	}

	if c.db != nil {
		buckets, err := boltsource.Datasets(c.db)
		if err != nil {
			return nil, err
		}
		if slices.Contains(buckets, name) {
			return boltsource.New(c.db, name,
				boltsource.WithBatchSize(c.cfg.Stream.BatchSize),
				boltsource.WithLogger(c.logger)), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", grpcsource.ErrDatasetNotFound, name)
}

// Close releases the bolt file
func (c *dataCatalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Server represents the tabula row server
type Server struct {
	cfg        *config.Config
	logger     log.Logger
	tel        telemetry.Telemetry
	catalog    *dataCatalog
	rows       *grpcsource.Server
	listener   net.Listener
	grpcServer *grpc.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger log.Logger, tel telemetry.Telemetry) *Server {
	return &Server{cfg: cfg, logger: logger, tel: tel}
}

// Start opens the catalog and the listener
func (s *Server) Start() error {
	catalog, err := newDataCatalog(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.catalog = catalog

	s.listener, err = net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		catalog.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Address, err)
	}

	kaProps := keepalive.ServerParameters{
		MaxConnectionIdle: 60 * time.Second,
		Time:              15 * time.Second,
		Timeout:           5 * time.Second,
	}
	kaPolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}
	s.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(kaProps),
		grpc.KeepaliveEnforcementPolicy(kaPolicy),
	)

	s.rows = grpcsource.NewServer(catalog,
		grpcsource.WithServerHighWaterMark(s.cfg.Stream.HighWaterMark),
		grpcsource.WithServerLogger(s.logger),
		grpcsource.WithServerStats(stats.NewAtomicCollector()),
		grpcsource.WithServerTelemetry(s.tel),
	)
	s.rows.Register(s.grpcServer)

	s.logger.Info("Serving datasets from %s on %s", s.cfg.Server.DataDir, s.listener.Addr())
	return nil
}

// Addr returns the listening address once started
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve starts serving requests (blocking)
func (s *Server) Serve() error {
	if s.grpcServer == nil {
		return errors.New("server not initialized, call Start() first")
	}
	return s.grpcServer.Serve(s.listener)
}

// Shutdown gracefully stops the server, forcing it once ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
			s.logger.Info("Server stopped gracefully")
		case <-ctx.Done():
			s.logger.Warn("Shutdown deadline exceeded, forcing server stop")
			s.grpcServer.Stop()
		}
	}

	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			return fmt.Errorf("failed to close catalog: %w", err)
		}
	}
	return nil
}
