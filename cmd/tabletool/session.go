package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KevoDB/tablestore/pkg/common/iterator"
	"github.com/KevoDB/tablestore/pkg/common/iterator/bounded"
	"github.com/KevoDB/tablestore/pkg/config"
	"github.com/KevoDB/tablestore/pkg/sstable"
	"github.com/KevoDB/tablestore/pkg/sstable/compression"
	"github.com/KevoDB/tablestore/pkg/stats"
	"github.com/KevoDB/tablestore/pkg/tablecache"
	"github.com/KevoDB/tablestore/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var errNoDirectory = errors.New("no directory open")

// session holds the state of one interactive run: the open directory and
// the table cache over it.
type session struct {
	out    io.Writer
	cfg    *config.Config
	codecs *compression.Registry
	tel    telemetry.Telemetry
	namer  tablecache.DefaultNamer

	dir string
	tc  *tablecache.TableCache
}

func newSession(out io.Writer, cfg *config.Config, tel telemetry.Telemetry) (*session, error) {
	codecs, err := compression.DefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to create codecs: %w", err)
	}
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &session{out: out, cfg: cfg, codecs: codecs, tel: tel}, nil
}

func (s *session) prompt() string {
	if s.dir != "" {
		return fmt.Sprintf("tabletool:%s> ", s.dir)
	}
	return "tabletool> "
}

func (s *session) open(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if s.tc != nil {
		s.tc.Close()
	}
	s.cfg.Update(func(c *config.Config) { c.DataDir = dir })
	s.dir = dir
	s.tc = tablecache.NewFromConfig(s.cfg, s.codecs, s.tel)
	return nil
}

func (s *session) closeDir() error {
	if s.tc == nil {
		return errNoDirectory
	}
	err := s.tc.Close()
	s.tc = nil
	s.dir = ""
	return err
}

func (s *session) shutdown() {
	if s.tc != nil {
		s.tc.Close()
	}
	s.codecs.Close()
}

// exec runs one command line and reports whether the session should end
func (s *session) exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToUpper(parts[0])

	if strings.HasPrefix(cmd, ".") {
		switch strings.ToLower(cmd) {
		case ".help":
			fmt.Fprint(s.out, helpText)
		case ".open":
			if len(parts) < 2 {
				fmt.Fprintln(s.out, "Error: Missing path argument")
				return false
			}
			if err := s.open(parts[1]); err != nil {
				fmt.Fprintf(s.out, "Error opening directory: %s\n", err)
				return false
			}
			fmt.Fprintf(s.out, "Directory opened at %s\n", s.dir)
		case ".close":
			dir := s.dir
			if err := s.closeDir(); err != nil {
				fmt.Fprintf(s.out, "Error: %s\n", err)
				return false
			}
			fmt.Fprintf(s.out, "Directory %s closed\n", dir)
		case ".exit":
			fmt.Fprintln(s.out, "Goodbye!")
			return true
		case ".stats":
			s.printStats()
		default:
			fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
		}
		return false
	}

	if s.tc == nil && cmd != "HELP" {
		fmt.Fprintf(s.out, "Error: %s\n", errNoDirectory)
		return false
	}

	var err error
	switch cmd {
	case "HELP":
		fmt.Fprint(s.out, helpText)
	case "BUILD":
		err = s.build(parts[1:])
	case "LIST":
		err = s.list()
	case "FOOTER":
		err = s.footer(parts[1:])
	case "GET":
		err = s.get(parts[1:])
	case "SCAN":
		err = s.scan(parts[1:])
	case "EVICT":
		err = s.evict(parts[1:])
	default:
		fmt.Fprintf(s.out, "Unknown command: %s\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err)
	}
	return false
}

func parseFileNum(args []string, usage string) (uint64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid file number %q", args[0])
	}
	return n, nil
}

// tableSize stats the table under its current or legacy name. A missing
// table yields zero so that the table cache reports it as not found.
func (s *session) tableSize(num uint64) uint64 {
	for _, name := range []string{s.namer.TableFileName(num), s.namer.LegacyTableFileName(num)} {
		if fi, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
			return uint64(fi.Size())
		}
	}
	return 0
}

func (s *session) build(args []string) error {
	const usage = "BUILD num count [prefix]"
	num, err := parseFileNum(args, usage)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", usage)
	}
	count, err := strconv.Atoi(args[1])
	if err != nil || count < 0 {
		return fmt.Errorf("invalid count %q", args[1])
	}
	prefix := "key"
	if len(args) > 2 {
		prefix = args[2]
	}

	ctx, span := s.tel.StartSpan(context.Background(), "tabletool.build",
		attribute.Int64(telemetry.AttrFileID, int64(num)))
	defer span.End()

	start := time.Now()
	opts, err := s.cfg.WriterOptions(s.codecs)
	if err != nil {
		return err
	}
	w, err := sstable.NewWriter(sstable.OSFileSystem{}, filepath.Join(s.dir, s.namer.TableFileName(num)), opts)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		key := []byte(fmt.Sprintf("%s%08d", prefix, i))
		value := []byte(fmt.Sprintf("value-%d", i))
		if err := w.Add(key, value); err != nil {
			w.Abort()
			return err
		}
	}
	size, err := w.Finish()
	if err != nil {
		return err
	}
	telemetry.RecordBytes(ctx, s.tel, "tablestore.tabletool.build.bytes", int64(size),
		attribute.String(telemetry.AttrCompression, opts.Compression.String()))
	s.tc.Collector().TrackBytes(true, size)
	s.tc.Collector().TrackOperation(stats.OpBuild)

	// A previous table under the same number may still be cached.
	s.tc.Evict(num)
	fmt.Fprintf(s.out, "Built table %d: %d entries, %d bytes (%.2f ms)\n",
		num, count, size, float64(time.Since(start).Microseconds())/1000.0)
	return nil
}

func (s *session) list() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	type tableFile struct {
		num  uint64
		name string
		size int64
	}
	var tables []tableFile
	for _, e := range entries {
		num, ok := tablecache.ParseTableFileName(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		tables = append(tables, tableFile{num: num, name: e.Name(), size: info.Size()})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].num < tables[j].num })

	for _, t := range tables {
		fmt.Fprintf(s.out, "%6d  %-12s %d bytes\n", t.num, t.name, t.size)
	}
	fmt.Fprintf(s.out, "%d tables\n", len(tables))
	return nil
}

func (s *session) footer(args []string) error {
	num, err := parseFileNum(args, "FOOTER num")
	if err != nil {
		return err
	}
	h, err := s.tc.Find(num, s.tableSize(num))
	if err != nil {
		return err
	}
	defer h.Release()

	t := h.Table()
	ft := t.Footer()
	fmt.Fprintf(s.out, "Table %d (%d bytes)\n", num, t.Size())
	fmt.Fprintf(s.out, "  metaindex: %s\n", ft.MetaindexHandle)
	fmt.Fprintf(s.out, "  index:     %s\n", ft.IndexHandle)
	fmt.Fprintf(s.out, "  data blocks: %d\n", t.IndexEntries())
	fmt.Fprintf(s.out, "  filter: %t\n", t.HasFilter())
	return nil
}

func (s *session) get(args []string) error {
	num, err := parseFileNum(args, "GET num key")
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("usage: GET num key")
	}
	key := []byte(args[1])

	var value []byte
	found := false
	err = s.tc.Get(s.cfg.ReadOptions(), num, s.tableSize(num), key, func(k, v []byte) {
		if bytes.Equal(k, key) {
			found = true
			value = append([]byte(nil), v...)
		}
	})
	if err != nil {
		return err
	}
	if found {
		fmt.Fprintf(s.out, "%s\n", value)
	} else {
		fmt.Fprintln(s.out, "Key not found")
	}
	return nil
}

func (s *session) scan(args []string) error {
	const usage = "SCAN num [prefix] | SCAN num RANGE start end | SCAN num REVERSE [prefix]"
	num, err := parseFileNum(args, usage)
	if err != nil {
		return err
	}

	it, err := s.tc.NewIterator(s.cfg.ReadOptions(), num, s.tableSize(num))
	if err != nil {
		return err
	}
	defer it.Close()

	var iter iterator.Iterator = it
	reverse := false
	rest := args[1:]
	if len(rest) > 0 && strings.ToUpper(rest[0]) == "REVERSE" {
		reverse = true
		rest = rest[1:]
	}
	switch {
	case len(rest) == 0:
	case len(rest) == 1:
		iter = bounded.NewPrefixIterator(it, []byte(rest[0]))
	case len(rest) == 3 && strings.ToUpper(rest[0]) == "RANGE":
		iter = bounded.NewBoundedIterator(it, []byte(rest[1]), []byte(rest[2]))
	default:
		return fmt.Errorf("usage: %s", usage)
	}

	count := 0
	if reverse {
		for iter.SeekToLast(); iter.Valid(); iter.Prev() {
			fmt.Fprintf(s.out, "%s: %s\n", iter.Key(), iter.Value())
			count++
		}
	} else {
		for iter.SeekToFirst(); iter.Valid(); iter.Next() {
			fmt.Fprintf(s.out, "%s: %s\n", iter.Key(), iter.Value())
			count++
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d entries found\n", count)
	return nil
}

func (s *session) evict(args []string) error {
	num, err := parseFileNum(args, "EVICT num")
	if err != nil {
		return err
	}
	s.tc.Evict(num)
	fmt.Fprintf(s.out, "Table %d evicted\n", num)
	return nil
}

func (s *session) printStats() {
	if s.tc == nil {
		fmt.Fprintf(s.out, "Error: %s\n", errNoDirectory)
		return
	}

	st := s.tc.Stats()
	ops := s.tc.Collector().GetStats()
	fmt.Fprintln(s.out, "Table Cache Statistics:")
	fmt.Fprintf(s.out, "  Tables: %d cached, %d open\n", st.Entries, st.LiveTables)
	fmt.Fprintf(s.out, "  Lookups: %d hits, %d misses, %d evictions\n",
		st.Cache.Hits, st.Cache.Misses, st.Cache.Evictions)
	fmt.Fprintf(s.out, "  Operations: %d finds, %d gets, %d scans, %d evicts, %d builds\n",
		opCount(ops, stats.OpFind), opCount(ops, stats.OpGet), opCount(ops, stats.OpIterator),
		opCount(ops, stats.OpEvict), opCount(ops, stats.OpBuild))
	fmt.Fprintf(s.out, "  Blocks: %d read from disk\n", opCount(ops, stats.OpBlockRead))
	fmt.Fprintf(s.out, "  Bytes: %d read, %d written\n", ops["total_bytes_read"], ops["total_bytes_written"])
	if errs, ok := ops["errors"].(map[string]uint64); ok && len(errs) > 0 {
		fmt.Fprintf(s.out, "  Errors: %v\n", errs)
	}
}

func opCount(ops map[string]interface{}, op stats.OperationType) uint64 {
	n, _ := ops[string(op)+"_ops"].(uint64)
	return n
}
