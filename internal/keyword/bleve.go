package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/sakuin/internal/models"
)

const (
	fieldContent    = "content"
	fieldTitle      = "title"
	fieldDocumentID = "document_id"
	fieldProjectID  = "project_id"

	// maxChunksPerDocument bounds the lookup of a document's chunks on delete.
	maxChunksPerDocument = 100000
)

// chunkRecord is the indexed form of one chunk.
type chunkRecord struct {
	Content    string `json:"content"`
	Title      string `json:"title"`
	DocumentID string `json:"document_id"`
	ProjectID  string `json:"project_id"`
}

// BleveIndex implements KeywordIndex using Bleve. Each Bleve document is one chunk.
type BleveIndex struct {
	index bleve.Index
}

func newIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query term matches the exact word.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldContent, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldTitle, textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.Store = true
	keywordFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldDocumentID, keywordFieldMapping)
	docMapping.AddFieldMappingsAt(fieldProjectID, keywordFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an
// in-memory index. If you change the index mapping in code, remove the index directory
// so it is rebuilt.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexDocument replaces the chunks of docID in one batch.
func (b *BleveIndex) IndexDocument(ctx context.Context, docID string, meta models.ContentMetadata, chunks []models.ContentChunk) error {
	existing, err := b.chunkIDsOf(ctx, docID)
	if err != nil {
		return err
	}
	batch := b.index.NewBatch()
	keep := make(map[string]struct{}, len(chunks))
	// Underscores as spaces so "company_profile_2021.pptx" is searchable as "company profile 2021";
	// the standard analyzer does not split on underscore.
	title := strings.ReplaceAll(meta.Source.Title, "_", " ")
	for _, ch := range chunks {
		keep[ch.ID] = struct{}{}
		if err := batch.Index(ch.ID, chunkRecord{
			Content:    ch.Text,
			Title:      title,
			DocumentID: docID,
			ProjectID:  meta.ProjectID,
		}); err != nil {
			return fmt.Errorf("failed to add chunk %s to batch: %w", ch.ID, err)
		}
	}
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return nil
}

// DeleteDocument removes every chunk of docID.
func (b *BleveIndex) DeleteDocument(ctx context.Context, docID string) error {
	ids, err := b.chunkIDsOf(ctx, docID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (b *BleveIndex) chunkIDsOf(ctx context.Context, docID string) ([]string, error) {
	q := bleve.NewTermQuery(docID)
	q.SetField(fieldDocumentID)
	req := bleve.NewSearchRequest(q)
	req.Size = maxChunksPerDocument
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve chunk lookup failed: %w", err)
	}
	ids := make([]string, len(results.Hits))
	for i, hit := range results.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search scores chunks against query and returns up to limit results.
// When opts.TitleBoost > 1, title and content are queried separately and merged additively.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	if limit <= 0 || len(tokenizeQuery(query)) == 0 {
		return nil, nil
	}
	fuzziness := 2
	if opts.Fuzziness > 0 {
		fuzziness = opts.Fuzziness
	}
	if opts.TitleBoost <= 1.0 {
		q := b.buildTextQuery(query, opts.FuzzyEnabled, fuzziness, "")
		return b.run(ctx, b.restrict(q, opts), limit, 1.0)
	}

	// Request more from each side so the merged top "limit" is correct.
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	titleHits, err := b.run(ctx, b.restrict(b.buildTextQuery(query, opts.FuzzyEnabled, fuzziness, fieldTitle), opts), reqSize, opts.TitleBoost)
	if err != nil {
		return nil, err
	}
	contentHits, err := b.run(ctx, b.restrict(b.buildTextQuery(query, opts.FuzzyEnabled, fuzziness, fieldContent), opts), reqSize, 1.0)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]*KeywordResult, len(titleHits)+len(contentHits))
	for _, hits := range [][]*KeywordResult{titleHits, contentHits} {
		for _, h := range hits {
			if prev, ok := merged[h.ChunkID]; ok {
				prev.Score += h.Score
				continue
			}
			merged[h.ChunkID] = h
		}
	}
	out := make([]*KeywordResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, size int, boost float64) ([]*KeywordResult, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	req.Fields = []string{fieldDocumentID}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		docID, _ := hit.Fields[fieldDocumentID].(string)
		out[i] = &KeywordResult{ChunkID: hit.ID, DocumentID: docID, Score: hit.Score * boost}
	}
	return out, nil
}

// restrict narrows q to the chunk and project sets of opts.
func (b *BleveIndex) restrict(q blevequery.Query, opts *SearchOptions) blevequery.Query {
	parts := []blevequery.Query{q}
	if len(opts.ChunkIDs) > 0 {
		parts = append(parts, bleve.NewDocIDQuery(opts.ChunkIDs))
	}
	if len(opts.ProjectIDs) > 0 {
		projects := make([]blevequery.Query, len(opts.ProjectIDs))
		for i, p := range opts.ProjectIDs {
			tq := bleve.NewTermQuery(p)
			tq.SetField(fieldProjectID)
			projects[i] = tq
		}
		parts = append(parts, bleve.NewDisjunctionQuery(projects...))
	}
	if len(parts) == 1 {
		return q
	}
	return bleve.NewConjunctionQuery(parts...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildTextQuery creates a match query, or with fuzzy enabled a disjunction of FuzzyQueries
// (any term may match). An empty field searches all fields.
func (b *BleveIndex) buildTextQuery(queryStr string, fuzzy bool, fuzziness int, field string) blevequery.Query {
	if !fuzzy {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	terms := tokenizeQuery(queryStr)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
