// Package index implements Stage 1 of the pipeline driver: chunking
// scanned files into documents and delivering them to the Vector
// Index adapter in batches of configured size, grounded on the Python
// original's WebVectorizeRepoNode batch-upload loop.
package index

import (
	"context"

	"github.com/qs3c/repoanalyzer/internal/adapter/vectorindex"
)

// ChunkSource is a file's content plus the metadata required by the
// adapter (path, language, line range).
type ChunkSource struct {
	Path     string
	Language string
	Content  string
}

// ToDocuments converts scanned files into single-chunk-per-file
// documents. Each file is its own chunk; the Glossary does not
// require sub-file chunking, so the simplest faithful mapping is used.
func ToDocuments(sources []ChunkSource) []vectorindex.Document {
	docs := make([]vectorindex.Document, 0, len(sources))
	for _, s := range sources {
		docs = append(docs, vectorindex.Document{
			Title:     s.Path,
			File:      s.Path,
			Content:   s.Content,
			Language:  s.Language,
			StartLine: 1,
			EndLine:   countLines(s.Content),
		})
	}
	return docs
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	lines := 1
	for _, r := range content {
		if r == '\n' {
			lines++
		}
	}
	return lines
}

// Build delivers documents to the adapter in batches of batchSize,
// creating the index on the first batch and adding on subsequent
// ones, returning the final index_name (spec §4.3 Stage 1).
func Build(ctx context.Context, adapter vectorindex.Adapter, documents []vectorindex.Document, batchSize int) (string, error) {
	if batchSize <= 0 || batchSize >= len(documents) {
		return adapter.CreateIndex(ctx, documents, "content")
	}

	indexName, err := adapter.CreateIndex(ctx, documents[:batchSize], "content")
	if err != nil {
		return "", err
	}
	// A local_ fallback means the remote service was unreachable;
	// pushing the remaining batches at it would only turn graceful
	// degradation back into a task failure.
	if vectorindex.IsLocalFallback(indexName) {
		return indexName, nil
	}

	for i := batchSize; i < len(documents); i += batchSize {
		end := i + batchSize
		if end > len(documents) {
			end = len(documents)
		}
		if err := adapter.AddDocuments(ctx, indexName, documents[i:end]); err != nil {
			return indexName, err
		}
	}
	return indexName, nil
}
