package inventory

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps the collection in a single ';'-delimited text file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// EnsureExists creates the store file holding only the header row when it
// does not exist yet.
func (s *FileStore) EnsureExists() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return s.Save(context.Background(), nil)
}

func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return f.Close()
}

func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer f.Close()

	recs, err := decodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, s.path, err)
	}
	return recs, nil
}

// Save writes recs to a temp file in the same directory and renames it over
// the store.
func (s *FileStore) Save(ctx context.Context, recs []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, recs); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func decodeRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = len(Header)
	cr.LazyQuotes = true

	head, err := cr.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedRecord, err)
	}
	idx, err := columnIndex(head)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, 16)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		out = append(out, Record{
			Name:     row[idx[0]],
			Category: row[idx[1]],
			Quantity: row[idx[2]],
			Price:    row[idx[3]],
		})
	}
}

// columnIndex maps each Header field to its position in the file's header row.
func columnIndex(head []string) ([numFields]int, error) {
	var idx [numFields]int
	pos := make(map[string]int, len(head))
	for i, h := range head {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for i, name := range Header {
		p, ok := pos[name]
		if !ok {
			return idx, fmt.Errorf("%w: header missing column %q", ErrMalformedRecord, name)
		}
		idx[i] = p
	}
	return idx, nil
}

// encodeRecords quotes a field only when reading it back would otherwise
// change it: it holds the delimiter or a line break, or starts with a quote.
func encodeRecords(w *bufio.Writer, recs []Record) error {
	writeRow(w, Header)
	for _, rec := range recs {
		writeRow(w, rec.fields())
	}
	return w.Flush()
}

func writeRow(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			_ = w.WriteByte(Delimiter)
		}
		if !needsQuotes(f) {
			_, _ = w.WriteString(f)
			continue
		}
		_ = w.WriteByte('"')
		_, _ = w.WriteString(strings.ReplaceAll(f, `"`, `""`))
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('\n')
}

func needsQuotes(f string) bool {
	return strings.ContainsAny(f, string(Delimiter)+"\r\n") || strings.HasPrefix(f, `"`)
}

func writeFileAtomic(path string, recs []Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := encodeRecords(bw, recs); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
