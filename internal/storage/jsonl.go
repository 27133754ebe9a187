package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matsen/citegraph/internal/citation"
	"github.com/matsen/citegraph/internal/paper"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// SeedRecord is one line of a seed file: a paper plus its outgoing
// citation stubs. Seed files are the git-versionable form of a collection.
type SeedRecord struct {
	paper.Paper
	Citations []citation.Stub `json:"citations,omitempty"`
}

// ReadSeedFile reads all seed records from a JSONL file.
func ReadSeedFile(path string) ([]SeedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	var records []SeedRecord
	scanner := bufio.NewScanner(f)

	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec SeedRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	return records, nil
}

// WriteSeedFile writes seed records to a JSONL file, replacing existing content.
func WriteSeedFile(path string, records []SeedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating seed file: %w", err)
	}
	defer f.Close()

	if err := WriteSeeds(f, records); err != nil {
		return err
	}
	return f.Close()
}

// WriteSeeds writes seed records to w, one JSON object per line.
func WriteSeeds(w io.Writer, records []SeedRecord) error {
	enc := json.NewEncoder(w)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}

	return nil
}

// ExportCollection returns every paper of collectionID as a seed record
// carrying its outgoing citations as stubs. IDs are kept so that an export
// can be diffed; ImportSeeds ignores them.
func (t *Tx) ExportCollection(ctx context.Context, collectionID string) ([]SeedRecord, error) {
	papers, err := t.ListPapers(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	cites, err := t.ListCollectionCitations(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	bySource := make(map[string][]citation.Stub)
	for _, c := range cites {
		bySource[c.SourceID] = append(bySource[c.SourceID], c.Stub())
	}

	records := make([]SeedRecord, 0, len(papers))
	for _, p := range papers {
		records = append(records, SeedRecord{Paper: p, Citations: bySource[p.ID]})
	}
	return records, nil
}
