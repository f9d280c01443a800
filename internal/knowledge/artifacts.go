package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names written by the indexer and read at startup.
const (
	ChunksFile = "chunks.json"
	IndexFile  = "bm25-index.json"
)

// WriteArtifacts writes chunks and index as indented JSON into dir.
func WriteArtifacts(dir string, chunks []Chunk, ix *Index) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, ChunksFile), chunks); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, IndexFile), ix)
}

// LoadArtifacts reads and validates the artifacts in dir. The index must
// cover exactly the chunk ids.
func LoadArtifacts(dir string) ([]Chunk, *Index, error) {
	var chunks []Chunk
	if err := readJSON(filepath.Join(dir, ChunksFile), &chunks); err != nil {
		return nil, nil, err
	}
	var ix Index
	if err := readJSON(filepath.Join(dir, IndexFile), &ix); err != nil {
		return chunks, nil, err
	}
	if err := ix.Validate(); err != nil {
		return chunks, nil, fmt.Errorf("invalid index: %w", err)
	}
	for _, c := range chunks {
		if _, ok := ix.Docs[c.ID]; !ok {
			return chunks, nil, fmt.Errorf("chunk %s missing from index", c.ID)
		}
	}
	if len(chunks) != ix.DocCount {
		return chunks, nil, fmt.Errorf("index has %d docs for %d chunks", ix.DocCount, len(chunks))
	}
	return chunks, &ix, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
