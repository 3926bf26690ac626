package tablecache

import (
	"github.com/KevoDB/tablestore/pkg/config"
	"github.com/KevoDB/tablestore/pkg/sstable"
	"github.com/KevoDB/tablestore/pkg/sstable/compression"
	"github.com/KevoDB/tablestore/pkg/telemetry"
)

// NewFromConfig creates a table cache over cfg.DataDir on the OS file system.
// tel may be nil to disable metrics.
func NewFromConfig(cfg *config.Config, codecs *compression.Registry, tel telemetry.Telemetry) *TableCache {
	logger := cfg.Logger()
	return New(cfg.DataDir, Options{
		Entries:    cfg.TableCacheEntries,
		FileSystem: sstable.OSFileSystem{},
		Reader:     cfg.ReaderOptions(codecs, cfg.NewBlockCache(), logger),
		Logger:     logger,
		Metrics:    NewMetrics(tel),
	})
}
