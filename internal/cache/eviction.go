package cache

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Evictor enforces a byte and file-count budget over the store by deleting
// the oldest-by-mtime finalized entries first. It is LRU-by-write, not by
// access: the store does not track reads.
type Evictor struct {
	store    *Store
	maxBytes int64
	maxFiles int
	log      *slog.Logger

	mu sync.Mutex
}

type entryInfo struct {
	path  string
	size  int64
	mtime int64
}

type Result struct {
	Evicted    int   `json:"evicted"`
	BytesFreed int64 `json:"bytes_freed"`
}

type Stats struct {
	Files       int   `json:"files"`
	Bytes       int64 `json:"bytes"`
	OldestUnix  int64 `json:"oldest_ts,omitempty"`
	NewestUnix  int64 `json:"newest_ts,omitempty"`
	BudgetBytes int64 `json:"budget_bytes"`
	BudgetFiles int   `json:"budget_files"`
}

func NewEvictor(store *Store, maxBytes int64, maxFiles int, logger *slog.Logger) *Evictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evictor{
		store:    store,
		maxBytes: maxBytes,
		maxFiles: maxFiles,
		log:      logger.With("component", "eviction"),
	}
}

// Enforce deletes oldest entries until both budgets hold or nothing is left.
// Deletion is best-effort: entries already removed by a concurrent evictor
// are skipped. In-progress temp files are never candidates.
func (e *Evictor) Enforce() Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	total, items := e.inventory()
	var res Result
	i := 0
	for (total-res.BytesFreed) > e.maxBytes || (e.maxFiles > 0 && len(items)-res.Evicted > e.maxFiles) {
		if i >= len(items) {
			break
		}
		item := items[i]
		i++
		if err := os.Remove(item.path); err != nil {
			if !os.IsNotExist(err) {
				e.log.Warn("evict failed", "path", item.path, "error", err)
				continue
			}
		}
		res.Evicted++
		res.BytesFreed += item.size
	}
	if res.Evicted > 0 {
		e.log.Info("cache budget enforced", "evicted", res.Evicted, "bytes_freed", res.BytesFreed)
	}
	return res
}

// Stats reports current cache occupancy against the configured budgets.
func (e *Evictor) Stats() Stats {
	total, items := e.inventory()
	s := Stats{
		Files:       len(items),
		Bytes:       total,
		BudgetBytes: e.maxBytes,
		BudgetFiles: e.maxFiles,
	}
	if len(items) > 0 {
		s.OldestUnix = items[0].mtime
		s.NewestUnix = items[len(items)-1].mtime
	}
	return s
}

// inventory lists finalized entries sorted oldest-mtime first.
func (e *Evictor) inventory() (int64, []entryInfo) {
	dir, err := os.ReadDir(e.store.Root())
	if err != nil {
		e.log.Warn("cache enumerate failed", "error", err)
		return 0, nil
	}
	var total int64
	items := make([]entryInfo, 0, len(dir))
	for _, ent := range dir {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), audioExt) {
			continue
		}
		st, err := ent.Info()
		if err != nil {
			continue
		}
		items = append(items, entryInfo{
			path:  filepath.Join(e.store.Root(), ent.Name()),
			size:  st.Size(),
			mtime: st.ModTime().Unix(),
		})
		total += st.Size()
	}
	sort.Slice(items, func(i, j int) bool { return items[i].mtime < items[j].mtime })
	return total, items
}
