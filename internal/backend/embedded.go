package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docpile/docpile/internal/extract"
)

const storeDocPrefix = "store::"

// EmbeddedBackend implements IndexBackend on a local Bleve index. It is the
// development and offline alternative to the HTTP backend: stores are
// registry documents in the index and uploaded files become searchable
// documents keyed under their store.
type EmbeddedBackend struct {
	index     bleve.Index
	extractor *extract.Extractor
	logger    *zap.Logger
}

// EmbeddedOption configures an EmbeddedBackend.
type EmbeddedOption func(*EmbeddedBackend)

// WithEmbeddedLogger sets the logger.
func WithEmbeddedLogger(logger *zap.Logger) EmbeddedOption {
	return func(b *EmbeddedBackend) {
		b.logger = logger
	}
}

// NewEmbeddedBackend creates or opens a Bleve index at path.
// An existing index is opened and reused; remove the directory to force a
// rebuild after a mapping change.
func NewEmbeddedBackend(path string, opts ...EmbeddedOption) (*EmbeddedBackend, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query for
	// the exact word in a document matches it.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("kind", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("store_id", keywordFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping

	var index bleve.Index
	if _, err := os.Stat(path); err == nil {
		index, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open index: %w", err)
		}
	} else {
		index, err = bleve.New(path, im)
		if err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	b := &EmbeddedBackend{
		index:     index,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// CreateStore registers a new store in the index and returns its ID.
func (b *EmbeddedBackend) CreateStore(ctx context.Context, displayName string) (string, error) {
	id := "embedded-" + uuid.New().String()
	doc := map[string]interface{}{
		"kind":  "store",
		"title": displayName,
	}
	if err := b.index.Index(storeDocPrefix+id, doc); err != nil {
		return "", fmt.Errorf("failed to register store: %w", err)
	}
	b.logger.Debug("store created", zap.String("store_id", id), zap.String("display_name", displayName))
	return id, nil
}

// UploadAndIndex extracts text from content and indexes it under storeID.
// Files whose text cannot be extracted are indexed by filename only so the
// upload still succeeds.
func (b *EmbeddedBackend) UploadAndIndex(ctx context.Context, storeID, filename string, content []byte) (string, error) {
	storeDoc, err := b.index.Document(storeDocPrefix + storeID)
	if err != nil {
		return "", fmt.Errorf("failed to look up store %s: %w", storeID, err)
	}
	if storeDoc == nil {
		return "", &Error{Status: 404, Message: fmt.Sprintf("store %s not found", storeID)}
	}

	text, err := b.extractor.Extract(filename, content)
	if err != nil {
		b.logger.Warn("text extraction failed, indexing filename only",
			zap.String("filename", filename), zap.Error(err))
		text = ""
	}

	fileID := uuid.New().String()
	doc := map[string]interface{}{
		"kind":     "file",
		"store_id": storeID,
		"title":    filename,
		"content":  text,
	}
	if err := b.index.Index(storeID+"::"+fileID, doc); err != nil {
		return "", fmt.Errorf("failed to index %s: %w", filename, err)
	}
	return fileID, nil
}

// ListStores returns the IDs of all registered stores.
func (b *EmbeddedBackend) ListStores(ctx context.Context) ([]string, error) {
	q := bleve.NewTermQuery("store")
	q.SetField("kind")
	req := bleve.NewSearchRequest(q)
	req.Size = 1000
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, strings.TrimPrefix(hit.ID, storeDocPrefix))
	}
	return ids, nil
}

// Close closes the underlying index.
func (b *EmbeddedBackend) Close() error {
	return b.index.Close()
}
