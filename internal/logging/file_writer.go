package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileWriter implements RecordWriter against the local filesystem, for
// standalone deployments without S3. Batches are appended to a JSONL
// file with size-based rotation and a bounded number of rotated files.
type FileWriter struct {
	fileTemplate string // e.g. "/var/log/aigate/usage-%s.jsonl"
	maxSize      int64  // maximum size in bytes before rotation
	maxFiles     int    // maximum number of rotated files to keep

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64
}

// NewFileWriter creates a file writer and opens its first file. The
// template must contain a single %s, filled with a timestamp on each
// rotation.
func NewFileWriter(fileTemplate string, maxSize int64, maxFiles int) (*FileWriter, error) {
	w := &FileWriter{
		fileTemplate: fileTemplate,
		maxSize:      maxSize,
		maxFiles:     maxFiles,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// newFileName applies the current timestamp to the file template.
func (w *FileWriter) newFileName() string {
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf(w.fileTemplate, timestamp)
}

// openFile opens (or creates) the active file and prepares the buffered
// writer. It also ensures that the directory exists.
func (w *FileWriter) openFile() error {
	w.currentFile = w.newFileName()
	dir := filepath.Dir(w.currentFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(w.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	w.currentSize = fi.Size()
	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded rotates the file when adding n bytes would exceed the
// max size. Caller holds w.mu.
func (w *FileWriter) rotateIfNeeded(n int) error {
	if w.currentSize+int64(n) < w.maxSize {
		return nil
	}

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := w.openFile(); err != nil {
		return err
	}
	return w.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest rotated files if more than
// maxFiles exist.
func (w *FileWriter) cleanupOldFiles() error {
	pattern := fmt.Sprintf(w.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, err1 := os.Stat(matches[i])
		fj, err2 := os.Stat(matches[j])
		if err1 != nil || err2 != nil {
			return false
		}
		return fi.ModTime().Before(fj.ModTime())
	})

	excess := len(matches) - w.maxFiles
	for i := 0; i < excess; i++ {
		_ = os.Remove(matches[i])
	}
	return nil
}

// WriteBatch appends records as JSON lines and flushes, so a completed
// batch is durable on return. Returns the path of the active file.
func (w *FileWriter) WriteBatch(ctx context.Context, records []*ArchiveRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			continue
		}
		line := append(data, '\n')
		if err := w.rotateIfNeeded(len(line)); err != nil {
			return "", fmt.Errorf("failed to rotate archive file: %w", err)
		}
		if _, err := w.writer.Write(line); err != nil {
			return "", fmt.Errorf("failed to write archive record: %w", err)
		}
		w.currentSize += int64(len(line))
	}

	if err := w.writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush archive file: %w", err)
	}
	return w.currentFile, nil
}

// Close flushes and closes the active file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}
