package store

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hyperjump/sakuin/internal/storage"
	"go.uber.org/zap"
)

// StorageStats summarizes what the store holds.
type StorageStats struct {
	TotalDocuments      int64            `json:"total_documents"`
	TotalChunks         int64            `json:"total_chunks"`
	TotalVectors        int64            `json:"total_vectors"`
	ByContentType       map[string]int64 `json:"by_content_type"`
	ByStatus            map[string]int64 `json:"by_status"`
	IndexCount          int              `json:"index_count"`
	EstimatedIndexBytes int64            `json:"estimated_index_bytes"`
	DiskBytes           int64            `json:"disk_bytes"`
	Generation          uint64           `json:"generation"`
}

// SearchPerformance aggregates search latency since the store was opened.
type SearchPerformance struct {
	TotalSearches   int64   `json:"total_searches"`
	FailedSearches  int64   `json:"failed_searches"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	MinLatencyMs    float64 `json:"min_latency_ms"`
	MaxLatencyMs    float64 `json:"max_latency_ms"`
	LastLatencyMs   float64 `json:"last_latency_ms"`
	AvgCandidateSet float64 `json:"avg_candidate_set"`
}

type perfCounters struct {
	mu         sync.Mutex
	total      int64
	failed     int64
	sum        time.Duration
	min        time.Duration
	max        time.Duration
	last       time.Duration
	candidates int64
}

func newPerfCounters() *perfCounters {
	return &perfCounters{min: time.Duration(math.MaxInt64)}
}

func (p *perfCounters) record(d time.Duration, candidates int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
	if err != nil {
		p.failed++
	}
	p.sum += d
	p.last = d
	p.min = min(p.min, d)
	p.max = max(p.max, d)
	if candidates > 0 {
		p.candidates += int64(candidates)
	}
}

func (p *perfCounters) snapshot() SearchPerformance {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return SearchPerformance{}
	}
	return SearchPerformance{
		TotalSearches:   p.total,
		FailedSearches:  p.failed,
		AvgLatencyMs:    ms(p.sum) / float64(p.total),
		MinLatencyMs:    ms(p.min),
		MaxLatencyMs:    ms(p.max),
		LastLatencyMs:   ms(p.last),
		AvgCandidateSet: float64(p.candidates) / float64(p.total),
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// GetStorageStats reports persisted row counts, index sizes and disk usage.
func (s *VectorStore) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	st, err := s.storage.Stats(ctx)
	if err != nil {
		return nil, asStorageError("stats", err)
	}
	out := &StorageStats{
		TotalDocuments: st.Documents,
		TotalChunks:    st.Chunks,
		TotalVectors:   st.Vectors,
		ByContentType:  st.ByContentType,
		ByStatus:       st.ByStatus,
		Generation:     s.Generation(),
	}
	for _, info := range s.manager.List() {
		out.IndexCount++
		out.EstimatedIndexBytes += info.EstimatedBytes
	}

	if du, ok := s.storage.(storage.DiskUser); ok {
		n, err := du.DiskBytes()
		if err != nil && s.logger != nil {
			s.logger.Debug("storage disk usage unavailable", zap.Error(err))
		}
		out.DiskBytes += n
	}
	if len(s.diskPaths) > 0 {
		n, err := storage.DiskUsageBytes(s.diskPaths...)
		if err != nil && s.logger != nil {
			s.logger.Debug("disk usage unavailable", zap.Strings("paths", s.diskPaths), zap.Error(err))
		}
		out.DiskBytes += n
	}
	return out, nil
}

// GetSearchPerformance reports latency counters of every Search call.
func (s *VectorStore) GetSearchPerformance() SearchPerformance {
	return s.perf.snapshot()
}
