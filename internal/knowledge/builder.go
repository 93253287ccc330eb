// Package knowledge aggregates a project's transcriptions and documents into a persisted
// knowledge base.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/rag"
	"github.com/hyperjump/sakuin/internal/storage"
	"github.com/hyperjump/sakuin/internal/store"
	"go.uber.org/zap"
)

// ContentIndexer is the indexing path items go through.
type ContentIndexer interface {
	IndexContent(ctx context.Context, input models.ContentInput) (string, error)
	RemoveIndex(ctx context.Context, id string) error
	Snapshot(ctx context.Context, id string) (store.Snapshot, error)
	Restore(ctx context.Context, sn store.Snapshot) error
}

// Builder builds, reads and tears down project knowledge bases.
type Builder struct {
	indexer   ContentIndexer
	storage   storage.Storage
	source    Source
	estimator rag.TokenEstimator
	now       func() time.Time
	logger    *zap.Logger // optional; when set, logs debug events
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithEstimator replaces the default CharClassEstimator.
func WithEstimator(e rag.TokenEstimator) Option {
	return func(b *Builder) { b.estimator = e }
}

// NewBuilder creates a builder.
func NewBuilder(indexer ContentIndexer, st storage.Storage, source Source, opts ...Option) *Builder {
	b := &Builder{
		indexer:   indexer,
		storage:   st,
		source:    source,
		estimator: rag.CharClassEstimator{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildKnowledgeBase indexes the project's content and persists its summary. The build is
// all-or-nothing: if any item fails, every document the build touched is put back the way
// it was (new ones removed, overwritten ones restored) and no knowledge base is saved. A rebuild bumps the version, keeps the creation time, and
// removes documents of the previous build that are gone from the source.
func (b *Builder) BuildKnowledgeBase(ctx context.Context, projectID string, includeTranscriptions, includeDocuments bool) (*models.KnowledgeBase, error) {
	if projectID == "" {
		return nil, models.InvalidInputf("project id is required")
	}
	if !includeTranscriptions && !includeDocuments {
		return nil, models.InvalidInputf("nothing to build: transcriptions and documents are both excluded")
	}
	start := b.now()

	var items []models.ContentInput
	if includeTranscriptions {
		ts, err := b.source.Transcriptions(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("list transcriptions: %w", err)
		}
		items = append(items, ts...)
	}
	if includeDocuments {
		ds, err := b.source.Documents(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		items = append(items, ds...)
	}

	prev, err := b.storage.GetKnowledgeBase(ctx, projectID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	kb := &models.KnowledgeBase{ProjectID: projectID}
	var indexed []string
	types := make(map[models.ContentType]struct{})
	langs := make(map[string]struct{})
	tags := make(map[string]struct{})
	stats := &kb.Metadata.Statistics

	var undo []store.Snapshot
	for _, item := range items {
		item.Metadata.ProjectID = projectID
		if item.Metadata.ID != "" {
			sn, err := b.indexer.Snapshot(ctx, item.Metadata.ID)
			if err != nil {
				b.compensate(ctx, projectID, undo)
				return nil, fmt.Errorf("build knowledge base %s: %w", projectID, err)
			}
			undo = append(undo, sn)
		}
		id, err := b.indexer.IndexContent(ctx, item)
		if err != nil {
			b.compensate(ctx, projectID, undo)
			return nil, fmt.Errorf("build knowledge base %s: index %s: %w", projectID, itemName(item), err)
		}
		if item.Metadata.ID == "" {
			undo = append(undo, store.Snapshot{ID: id})
		}
		indexed = append(indexed, id)

		chunks, err := b.storage.GetChunks(ctx, id)
		if err != nil {
			b.compensate(ctx, projectID, undo)
			return nil, fmt.Errorf("build knowledge base %s: %w", projectID, err)
		}
		kb.DocumentCount++
		kb.ChunkCount += len(chunks)
		kb.TotalTokens += b.estimator.Estimate(itemText(item))

		t := item.Metadata.Type
		if t == "" {
			t = models.ContentTypeOther
			if len(item.Segments) > 0 {
				t = models.ContentTypeTranscription
			}
		}
		types[t] = struct{}{}
		switch t {
		case models.ContentTypeTranscription:
			stats.TranscriptionCount++
		case models.ContentTypeDocument:
			stats.DocumentCount++
		}
		if item.Metadata.Language != "" {
			langs[item.Metadata.Language] = struct{}{}
		}
		for _, tag := range item.Metadata.Tags {
			tags[tag] = struct{}{}
		}
	}

	kb.DocumentIDs = indexed
	kb.Metadata.ContentTypes = sortedKeys(types)
	kb.Metadata.Languages = sortedKeys(langs)
	kb.Metadata.Tags = sortedKeys(tags)
	if kb.DocumentCount > 0 {
		stats.AverageChunksPerItem = float64(kb.ChunkCount) / float64(kb.DocumentCount)
	}
	if kb.ChunkCount > 0 {
		stats.AverageTokensPerChunk = float64(kb.TotalTokens) / float64(kb.ChunkCount)
	}

	now := b.now()
	kb.UpdatedAt = now
	if prev != nil {
		kb.ID = prev.ID
		kb.CreatedAt = prev.CreatedAt
		kb.Version = prev.Version + 1
	} else {
		kb.ID = uuid.New().String()
		kb.CreatedAt = now
		kb.Version = 1
	}
	stats.BuildDurationMillis = now.Sub(start).Milliseconds()

	if err := b.storage.SaveKnowledgeBase(ctx, kb); err != nil {
		b.compensate(ctx, projectID, undo)
		return nil, err
	}
	if prev != nil {
		b.prune(ctx, prev.DocumentIDs, indexed)
	}
	if b.logger != nil {
		b.logger.Info("knowledge base built", zap.String("project_id", projectID), zap.Int("version", kb.Version),
			zap.Int("documents", kb.DocumentCount), zap.Int("chunks", kb.ChunkCount))
	}
	return kb, nil
}

// compensate undoes a failed build, newest write first.
func (b *Builder) compensate(ctx context.Context, projectID string, undo []store.Snapshot) {
	ctx = context.WithoutCancel(ctx)
	for i := len(undo) - 1; i >= 0; i-- {
		if err := b.indexer.Restore(ctx, undo[i]); err != nil && b.logger != nil {
			b.logger.Warn("failed to roll back knowledge base item",
				zap.String("project_id", projectID), zap.String("id", undo[i].ID), zap.Error(err))
		}
	}
}

// prune removes documents of the previous build that the new build no longer contains. The
// new version is already saved, so pruning finishes even if ctx is cancelled.
func (b *Builder) prune(ctx context.Context, previous, current []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range previous {
		if slices.Contains(current, id) {
			continue
		}
		if err := b.indexer.RemoveIndex(ctx, id); err != nil && b.logger != nil {
			b.logger.Warn("failed to prune stale knowledge base item", zap.String("id", id), zap.Error(err))
		}
	}
}

// GetKnowledgeBase returns the persisted knowledge base of the project.
func (b *Builder) GetKnowledgeBase(ctx context.Context, projectID string) (*models.KnowledgeBase, error) {
	return b.storage.GetKnowledgeBase(ctx, projectID)
}

// DeleteKnowledgeBase removes every document of the project and then its knowledge base record.
func (b *Builder) DeleteKnowledgeBase(ctx context.Context, projectID string) error {
	if projectID == "" {
		return models.InvalidInputf("project id is required")
	}
	ids, err := b.storage.MatchingDocumentIDs(ctx, []models.Filter{models.ProjectIDsIn{projectID}})
	if err != nil {
		return err
	}
	for id := range ids {
		if err := b.indexer.RemoveIndex(ctx, id); err != nil {
			return fmt.Errorf("delete knowledge base %s: remove %s: %w", projectID, id, err)
		}
	}
	if err := b.storage.DeleteKnowledgeBase(ctx, projectID); err != nil {
		return err
	}
	if b.logger != nil {
		b.logger.Info("knowledge base deleted", zap.String("project_id", projectID), zap.Int("documents", len(ids)))
	}
	return nil
}

func itemText(item models.ContentInput) string {
	if len(item.Segments) == 0 {
		return item.Text
	}
	parts := make([]string, len(item.Segments))
	for i, s := range item.Segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

func itemName(item models.ContentInput) string {
	if item.Metadata.Source.FilePath != "" {
		return item.Metadata.Source.FilePath
	}
	if item.Metadata.ID != "" {
		return item.Metadata.ID
	}
	return "item"
}

func sortedKeys[K ~string](m map[K]struct{}) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
