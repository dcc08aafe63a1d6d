package grpcsource

import (
	"context"
	"errors"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/frame"
	"github.com/tabuladb/tabula/pkg/rowsource/csvsource"
	"github.com/tabuladb/tabula/pkg/stats"
	"github.com/tabuladb/tabula/pkg/stream"
)

const bufSize = 1024 * 1024

const sample = "id,name\n1,ada\n2,alan\n3,grace\n"

// failingSource delivers its header and then fails
type failingSource struct{}

func (failingSource) Start(h stream.RowHandler) {
	go func() {
		h.OnRow([]stream.Row{{"id"}})
		h.OnError(errors.New("disk on fire"))
	}()
}
func (failingSource) Pause()       {}
func (failingSource) Resume()      {}
func (failingSource) Close() error { return nil }

func setupServer(t *testing.T) (*Server, *grpc.ClientConn) {
	t.Helper()

	catalog := MapCatalog{
		"people": func() (stream.RowSource, error) {
			return csvsource.New(strings.NewReader(sample),
				csvsource.WithBatchSize(1),
				csvsource.WithLogger(log.NewDiscardLogger())), nil
		},
		"empty": func() (stream.RowSource, error) {
			return csvsource.New(strings.NewReader(""), csvsource.WithLogger(log.NewDiscardLogger())), nil
		},
		"broken": func() (stream.RowSource, error) {
			return failingSource{}, nil
		},
	}

	srv := NewServer(catalog,
		WithServerHighWaterMark(1),
		WithServerLogger(log.NewDiscardLogger()),
		WithServerStats(stats.NewAtomicCollector()),
	)

	listener := bufconn.Listen(bufSize)
	gs := grpc.NewServer()
	srv.Register(gs)
	go func() {
		if err := gs.Serve(listener); err != nil {
			t.Logf("Server error: %v", err)
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		gs.Stop()
		listener.Close()
	})
	return srv, conn
}

func remoteAdapter(conn *grpc.ClientConn, dataset string) *stream.Adapter {
	src := NewSource(conn, dataset, WithLogger(log.NewDiscardLogger()))
	return stream.New(src, stream.WithHighWaterMark(1), stream.WithLogger(log.NewDiscardLogger()))
}

func TestStreamRows(t *testing.T) {
	srv, conn := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := remoteAdapter(conn, "people")
	defer a.Close()

	f, err := frame.FromStream(ctx, a)
	if err != nil {
		t.Fatalf("FromStream failed: %v", err)
	}
	if got := f.ColumnNames(); !reflect.DeepEqual(got, []string{"id", "name"}) {
		t.Errorf("Expected remote header, got %v", got)
	}
	if got := f.Column("name").ToArray(); !reflect.DeepEqual(got, []any{"ada", "alan", "grace"}) {
		t.Errorf("Unexpected names %v", got)
	}

	if n := srv.Stats().GetStats()["rows_out"]; n != uint64(3) {
		t.Errorf("Expected the server to pull 3 rows, got %v", n)
	}
}

func TestStreamRowsEmptyDataset(t *testing.T) {
	_, conn := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := remoteAdapter(conn, "empty")
	defer a.Close()

	columns, err := a.ColumnNames(ctx)
	if err != nil {
		t.Fatalf("ColumnNames failed: %v", err)
	}
	if len(columns) != 0 {
		t.Errorf("Expected no columns, got %v", columns)
	}
	r, err := a.Read(ctx)
	if err != nil || !r.Done {
		t.Errorf("Expected Done, got %v, %v", r, err)
	}
}

func TestStreamRowsNotFound(t *testing.T) {
	_, conn := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := remoteAdapter(conn, "missing")
	defer a.Close()

	_, err := a.ColumnNames(ctx)
	if !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("Expected ErrDatasetNotFound, got %v", err)
	}
	if !errors.Is(err, stream.ErrUpstream) {
		t.Errorf("Expected the error to be an upstream failure, got %v", err)
	}
}

func TestStreamRowsUpstreamFailure(t *testing.T) {
	_, conn := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := remoteAdapter(conn, "broken")
	defer a.Close()

	_, err := frame.FromStream(ctx, a)
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("Expected the server-side cause in %q", err)
	}
	var upstream *stream.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected an UpstreamError, got %T", err)
	}
	if code := status.Code(upstream.Err); code != codes.Unavailable {
		t.Errorf("Expected Unavailable, got %v", code)
	}
}

func TestRemoteBackpressure(t *testing.T) {
	_, conn := setupServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := remoteAdapter(conn, "people")
	defer a.Close()

	if _, err := a.ColumnNames(ctx); err != nil {
		t.Fatalf("ColumnNames failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !a.State().Paused && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !a.State().Paused {
		t.Fatal("Expected the remote source to be paused at the high-water mark")
	}

	rows := 0
	cur := a.Rows().Iterate()
	for {
		r, err := cur.Advance(ctx)
		if err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		if r.Done {
			break
		}
		rows++
	}
	if rows != 3 {
		t.Errorf("Expected 3 rows, got %d", rows)
	}
}

func TestCloseCancelsCall(t *testing.T) {
	_, conn := setupServer(t)

	src := NewSource(conn, "people", WithLogger(log.NewDiscardLogger()))
	src.Pause()
	a := stream.New(src, stream.WithLogger(log.NewDiscardLogger()))
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-src.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Receive loop did not exit after Close")
	}
	if _, err := a.Read(context.Background()); !errors.Is(err, stream.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestCatalogFunc(t *testing.T) {
	var opened string
	c := CatalogFunc(func(name string) (stream.RowSource, error) {
		opened = name
		return nil, datasetError(name)
	})
	if _, err := c.Open("x"); !errors.Is(err, ErrDatasetNotFound) || opened != "x" {
		t.Errorf("Unexpected CatalogFunc result %q, %v", opened, err)
	}
}
