// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package columnar

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/parquet-go/parquet-go"
)

const (
	filePrefix = "batch_"
	fileSuffix = ".parquet"
)

// BatchFile describes one batch file on disk.
type BatchFile struct {
	Path    string
	Name    string
	Node    int
	Rows    int64
	Size    int64
	ModTime time.Time
}

// Writer writes immutable batch files into one directory.
// It is safe for concurrent use; file names never collide across nodes.
type Writer struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithClock overrides the time source used in file names.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a Writer for dir, creating the directory if needed.
func NewWriter(dir string, opts ...WriterOption) (*Writer, error) {
	if dir == "" {
		return nil, ErrNoOutputDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	w := &Writer{
		dir:    dir,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "batch-writer")
	return w, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write makes rows durable as a new batch file and returns its description.
// The file is written under a temporary name, synced, renamed into place and
// checked to be non-empty; it is complete on disk when Write returns nil.
func (w *Writer) Write(node int, rows []Row) (BatchFile, error) {
	if len(rows) == 0 {
		return BatchFile{}, ErrEmptyBatch
	}

	tmp, err := os.CreateTemp(w.dir, ".batch-*.tmp")
	if err != nil {
		return BatchFile{}, fmt.Errorf("creating batch file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := encode(tmp, rows); err != nil {
		return BatchFile{}, err
	}
	if err := tmp.Sync(); err != nil {
		return BatchFile{}, fmt.Errorf("syncing batch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return BatchFile{}, fmt.Errorf("closing batch file: %w", err)
	}

	name := fileName(w.now(), node, rows)
	path := filepath.Join(w.dir, name)
	if err := os.Rename(tmpName, path); err != nil {
		return BatchFile{}, fmt.Errorf("publishing batch file: %w", err)
	}
	committed = true
	syncDir(w.dir)

	info, err := os.Stat(path)
	if err != nil {
		return BatchFile{}, fmt.Errorf("verifying batch file: %w", err)
	}
	if info.Size() == 0 {
		return BatchFile{}, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}

	w.logger.Debug("batch file written", "file", name, "rows", len(rows), "bytes", info.Size())
	return BatchFile{
		Path:    path,
		Name:    name,
		Node:    node,
		Rows:    int64(len(rows)),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// encode writes rows as parquet to f. Encoder panics are returned as ErrEncode.
func encode(f *os.File, rows []Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEncode, r)
		}
	}()

	pw := parquet.NewGenericWriter[fileRow](f, batchSchema)
	if _, err := pw.Write(toFileRows(rows)); err != nil {
		return fmt.Errorf("writing batch rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("finishing batch file: %w", err)
	}
	return nil
}

// fileName builds batch_<utc-millis>_node_<n>_<digest>.parquet.
// The digest covers the row IDs so two batches from one node in the same
// millisecond still get distinct names.
func fileName(now time.Time, node int, rows []Row) string {
	h, _ := blake2b.New(4, nil)
	var buf [8]byte
	for _, row := range rows {
		binary.BigEndian.PutUint64(buf[:], uint64(row.ID))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%s%d_node_%d_%s%s", filePrefix, now.UTC().UnixMilli(), node, hex.EncodeToString(h.Sum(nil)), fileSuffix)
}

// syncDir flushes the directory entry of a freshly renamed file. Not every
// platform supports it, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// ListBatches returns every batch file in dir with its row count, ordered by name.
// A missing directory yields no files.
func ListBatches(dir string) ([]BatchFile, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []BatchFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		bf, err := describe(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		files = append(files, bf)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func describe(path string) (BatchFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return BatchFile{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return BatchFile{}, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return BatchFile{}, err
	}

	name := filepath.Base(path)
	var millis int64
	node := -1
	if _, err := fmt.Sscanf(name, filePrefix+"%d_node_%d_", &millis, &node); err != nil {
		node = -1
	}
	return BatchFile{
		Path:    path,
		Name:    name,
		Node:    node,
		Rows:    pf.NumRows(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// ReadBatch reads every row of a batch file.
func ReadBatch(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	stored, err := parquet.Read[fileRow](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	rows, err := fromFileRows(stored)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}
