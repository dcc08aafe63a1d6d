package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/openkvlab/boltdb"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/common/sequence"
	"github.com/tabuladb/tabula/pkg/config"
	"github.com/tabuladb/tabula/pkg/frame"
	"github.com/tabuladb/tabula/pkg/rowsource/boltsource"
	"github.com/tabuladb/tabula/pkg/rowsource/csvsource"
	"github.com/tabuladb/tabula/pkg/rowsource/grpcsource"
	"github.com/tabuladb/tabula/pkg/stats"
	"github.com/tabuladb/tabula/pkg/stream"
	"github.com/tabuladb/tabula/pkg/telemetry"
)

const helpText = `
tabula - lazy, composable queries over tabular rows.

Usage:
  tabula [options] [file]      - Start the shell, optionally opening file

Options:
  -config string               - Path to a JSON config file
  -server                      - Serve the datasets under -data over gRPC
  -address string              - Address to listen on in server mode
  -data string                 - Dataset directory for server mode

Commands:
  .help                        - Show this help message
  .open FILE                   - Load a CSV (optionally gzip/zstd/snappy) or JSON lines file
  .remote ADDR NAME            - Load dataset NAME from a tabula server
  .bolt PATH BUCKET            - Load rows stored in a bolt bucket
  .store PATH BUCKET           - Append the current rows to a bolt bucket
  .columns                     - List the column names
  .head [N]                    - Show the first N rows (default 10)
  .tail [N]                    - Show the last N rows (default 10)
  .where COL VALUE             - Keep rows whose COL equals VALUE
  .sort COL [DESC]             - Sort by COL
  .distinct COL                - Keep the first row for each value of COL
  .window N                    - Show the current rows in windows of N
  .count                       - Count the current rows
  .reset                       - Drop every filter and sort
  .stats                       - Show operation statistics
  .exit                        - Exit the program
`

var errNoData = errors.New("no data loaded, use .open, .remote or .bolt first")

// shell holds the state of an interactive session
type shell struct {
	cfg    *config.Config
	out    io.Writer
	logger log.Logger
	stats  *stats.AtomicCollector
	tel    telemetry.Telemetry

	source  string
	loaded  *frame.Frame[int]
	current *frame.Frame[int]
}

func newShell(cfg *config.Config, out io.Writer, logger log.Logger, tel telemetry.Telemetry) *shell {
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &shell{
		cfg:    cfg,
		out:    out,
		logger: logger,
		stats:  stats.NewAtomicCollector(),
		tel:    tel,
	}
}

func (s *shell) frameOptions() []frame.Option {
	return []frame.Option{frame.WithStats(s.stats), frame.WithLogger(s.logger)}
}

func (s *shell) adapter(src stream.RowSource, name string) *stream.Adapter {
	return stream.New(src,
		stream.WithHighWaterMark(s.cfg.Stream.HighWaterMark),
		stream.WithLogger(s.logger),
		stream.WithStats(s.stats),
		stream.WithTelemetry(s.tel),
		stream.WithSourceName(name),
	)
}

// load drains src into a frame and makes it current
func (s *shell) load(ctx context.Context, name string, src stream.RowSource) error {
	ctx, span := s.tel.StartSpan(ctx, "tabula.load",
		attribute.String(telemetry.AttrComponent, telemetry.ComponentFrame),
		attribute.String(telemetry.AttrSource, name))
	defer span.End()

	a := s.adapter(src, name)
	defer a.Close()

	f, err := frame.FromStream(ctx, a, s.frameOptions()...)
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.use(name, f)
	return nil
}

func (s *shell) use(name string, f *frame.Frame[int]) {
	s.source, s.loaded, s.current = name, f, f
	fmt.Fprintf(s.out, "Loaded %d rows with columns %s from %s\n",
		f.Count(), strings.Join(f.ColumnNames(), ", "), name)
}

// loadJSONLines reads one JSON object per line. Columns are inferred from
// the first object, or from every object when the config asks for it.
func (s *shell) loadJSONLines(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var rows []frame.Row
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row frame.Row
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	f, err := frame.New[int](frame.Values{
		Rows:            sequence.FromSlice(rows),
		ConsiderAllRows: s.cfg.Frame.ConsiderAllRows,
	}, s.frameOptions()...)
	if err != nil {
		return err
	}
	s.use(path, f.Bake())
	return nil
}

func (s *shell) open(ctx context.Context, path string) error {
	if strings.HasSuffix(path, ".jsonl") || strings.HasSuffix(path, ".ndjson") {
		return s.loadJSONLines(path)
	}
	options := append(csvsource.FromConfig(s.cfg), csvsource.WithLogger(s.logger))
	src, err := csvsource.Open(path, options...)
	if err != nil {
		return err
	}
	return s.load(ctx, path, src)
}

func (s *shell) remote(ctx context.Context, addr, name string) error {
	conn, err := grpcsource.Dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return s.load(ctx, addr+"/"+name, grpcsource.NewSource(conn, name, grpcsource.WithLogger(s.logger)))
}

func openBolt(path string) (*boltdb.DB, error) {
	return boltdb.Open(path, 0600, &boltdb.Options{Timeout: time.Second})
}

func (s *shell) bolt(ctx context.Context, path, bucket string) error {
	db, err := openBolt(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer db.Close()

	src := boltsource.New(db, bucket,
		boltsource.WithBatchSize(s.cfg.Stream.BatchSize),
		boltsource.WithLogger(s.logger))
	return s.load(ctx, path+"#"+bucket, src)
}

// records renders the current frame as a header and string rows
func records(f *frame.Frame[int]) []stream.Row {
	columns := f.ColumnNames()
	out := []stream.Row{columns}
	for _, row := range f.ToRows() {
		rec := make(stream.Row, len(columns))
		for i, name := range columns {
			if v := row[name]; v != nil {
				rec[i] = fmt.Sprint(v)
			}
		}
		out = append(out, rec)
	}
	return out
}

func (s *shell) store(path, bucket string) error {
	db, err := openBolt(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer db.Close()

	rows := records(s.current)
	if err := boltsource.WriteRows(db, bucket, rows); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Stored %d rows in %s#%s\n", len(rows)-1, path, bucket)
	return nil
}

func intArg(parts []string, i, def int) (int, error) {
	if len(parts) <= i {
		return def, nil
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", parts[i])
	}
	return n, nil
}

func (s *shell) requireColumn(name string) error {
	if !s.current.HasColumn(name) {
		return fmt.Errorf("unknown column %q", name)
	}
	return nil
}

// matches compares a cell with a typed-in value
func matches(v any, want string) bool {
	if v == nil {
		return want == ""
	}
	return fmt.Sprint(v) == want
}

func (s *shell) printStats() {
	all := s.stats.GetStats()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(s.out, "  %s: %v\n", k, all[k])
	}
}

// execute runs one command line and reports whether the shell should exit
func (s *shell) execute(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case ".help":
		fmt.Fprint(s.out, helpText)
		return false, nil
	case ".exit", ".quit":
		return true, nil
	case ".stats":
		s.printStats()
		return false, nil
	case ".open":
		if len(parts) < 2 {
			return false, errors.New("missing file argument")
		}
		return false, s.open(ctx, parts[1])
	case ".remote":
		if len(parts) < 3 {
			return false, errors.New("usage: .remote ADDR NAME")
		}
		return false, s.remote(ctx, parts[1], parts[2])
	case ".bolt":
		if len(parts) < 3 {
			return false, errors.New("usage: .bolt PATH BUCKET")
		}
		return false, s.bolt(ctx, parts[1], parts[2])
	}

	if s.current == nil {
		return false, errNoData
	}

	switch cmd {
	case ".store":
		if len(parts) < 3 {
			return false, errors.New("usage: .store PATH BUCKET")
		}
		return false, s.store(parts[1], parts[2])

	case ".columns":
		for _, name := range s.current.ColumnNames() {
			fmt.Fprintln(s.out, name)
		}

	case ".head", ".tail":
		n, err := intArg(parts, 1, 10)
		if err != nil {
			return false, err
		}
		if cmd == ".head" {
			fmt.Fprint(s.out, s.current.Head(n).String())
		} else {
			fmt.Fprint(s.out, s.current.Tail(n).String())
		}

	case ".where":
		if len(parts) < 2 {
			return false, errors.New("usage: .where COL VALUE")
		}
		if err := s.requireColumn(parts[1]); err != nil {
			return false, err
		}
		col, want := parts[1], strings.Join(parts[2:], " ")
		s.current = s.current.Where(func(r frame.Row) bool {
			return matches(r[col], want)
		}).Bake()
		fmt.Fprintf(s.out, "%d rows\n", s.current.Count())

	case ".sort":
		if len(parts) < 2 {
			return false, errors.New("usage: .sort COL [DESC]")
		}
		if err := s.requireColumn(parts[1]); err != nil {
			return false, err
		}
		if len(parts) > 2 && strings.EqualFold(parts[2], "desc") {
			s.current = s.current.OrderByDescending(parts[1]).Bake()
		} else {
			s.current = s.current.OrderBy(parts[1]).Bake()
		}
		fmt.Fprintf(s.out, "Sorted %d rows by %s\n", s.current.Count(), parts[1])

	case ".distinct":
		if len(parts) < 2 {
			return false, errors.New("usage: .distinct COL")
		}
		if err := s.requireColumn(parts[1]); err != nil {
			return false, err
		}
		s.current = s.current.Distinct(parts[1]).Bake()
		fmt.Fprintf(s.out, "%d distinct rows\n", s.current.Count())

	case ".window":
		n, err := intArg(parts, 1, 10)
		if err != nil {
			return false, err
		}
		if n <= 0 {
			return false, fmt.Errorf("window period must be positive, got %d", n)
		}
		for _, p := range s.current.Window(n).ToPairs() {
			rows := p.Value.ToPairs()
			if len(rows) == 0 {
				continue
			}
			fmt.Fprintf(s.out, "window %d: %d rows, index %d..%d\n",
				p.Index, len(rows), rows[0].Index, rows[len(rows)-1].Index)
		}

	case ".count":
		fmt.Fprintln(s.out, s.current.Count())

	case ".reset":
		s.current = s.loaded
		fmt.Fprintf(s.out, "Reset to %d rows from %s\n", s.current.Count(), s.source)

	default:
		return false, fmt.Errorf("unknown command %q, try .help", parts[0])
	}
	return false, nil
}
