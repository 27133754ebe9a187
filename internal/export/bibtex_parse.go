package export

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/matsen/citegraph/internal/paper"
)

var (
	entryStartRe = regexp.MustCompile(`^\s*@\w+\s*\{\s*([^,\s]+)\s*,`)
	doiFieldRe   = regexp.MustCompile(`(?i)^\s*doi\s*=\s*[\{"]([^\}"]+)[\}"]`)
)

// BibTeXIndex records the keys and DOIs already present in a .bib file.
type BibTeXIndex struct {
	Keys map[string]bool
	DOIs map[string]string // normalized DOI -> citation key
}

// NewBibTeXIndex creates an empty BibTeX index.
func NewBibTeXIndex() *BibTeXIndex {
	return &BibTeXIndex{
		Keys: make(map[string]bool),
		DOIs: make(map[string]string),
	}
}

// HasEntry reports whether an entry with the DOI, or failing that the key,
// is indexed.
func (idx *BibTeXIndex) HasEntry(key, doi string) bool {
	if d := paper.NormalizeDOI(doi); d != "" {
		if _, ok := idx.DOIs[d]; ok {
			return true
		}
	}
	return idx.Keys[key]
}

// ParseBibTeX indexes the entries read from r. Only the entry header and
// a single-line doi field are recognized.
func ParseBibTeX(r io.Reader) (*BibTeXIndex, error) {
	idx := NewBibTeXIndex()
	scanner := bufio.NewScanner(r)
	var key string
	for scanner.Scan() {
		line := scanner.Text()
		if m := entryStartRe.FindStringSubmatch(line); m != nil {
			key = strings.TrimSpace(m[1])
			idx.Keys[key] = true
			continue
		}
		if m := doiFieldRe.FindStringSubmatch(line); m != nil && key != "" {
			if d := paper.NormalizeDOI(m[1]); d != "" {
				idx.DOIs[d] = key
			}
		}
	}
	return idx, scanner.Err()
}

// ParseBibTeXFile indexes an existing .bib file. A missing file yields an
// empty index.
func ParseBibTeXFile(path string) (*BibTeXIndex, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewBibTeXIndex(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseBibTeX(f)
}

// NewEntries returns the papers not yet present in idx, by DOI or
// citation key, and records them in idx.
func (idx *BibTeXIndex) NewEntries(papers []paper.Paper) []paper.Paper {
	var fresh []paper.Paper
	for _, p := range papers {
		key := CiteKey(p)
		if idx.HasEntry(key, p.DOI) {
			continue
		}
		idx.Keys[key] = true
		if d := paper.NormalizeDOI(p.DOI); d != "" {
			idx.DOIs[d] = key
		}
		fresh = append(fresh, p)
	}
	return fresh
}

// AppendToBibFile appends content to path, creating it if needed, on a
// fresh line.
func AppendToBibFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString("\n" + content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
