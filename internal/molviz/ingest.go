package molviz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxUploadBytes bounds an uploaded file when no limit is configured.
const DefaultMaxUploadBytes = 8 << 20

// ValidateFileName accepts names whose text after the last dot is "pdb" in
// any case. A name without a dot is its own extension, so "pdb" passes.
func ValidateFileName(name string) error {
	ext := name[strings.LastIndexByte(name, '.')+1:]
	if !strings.EqualFold(ext, "pdb") {
		return ErrInvalidExtension
	}
	return nil
}

// FileIngestor turns uploaded files into text sources on a Controller.
type FileIngestor struct {
	controller *Controller
	maxBytes   int64
	logger     Logger
}

// NewFileIngestor creates an ingestor publishing to controller. A
// non-positive maxBytes selects DefaultMaxUploadBytes.
func NewFileIngestor(controller *Controller, maxBytes int64, logger Logger) *FileIngestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &FileIngestor{controller: controller, maxBytes: maxBytes, logger: logger}
}

// Ingest checks the name synchronously and returns ErrInvalidExtension
// without reading anything when it does not pass. Otherwise r is read on a
// goroutine and, once complete, published as the new source. The returned
// channel yields the read outcome exactly once and is then closed. On a read
// failure the selection is left as it was.
func (f *FileIngestor) Ingest(ctx context.Context, name string, r io.Reader) (<-chan error, error) {
	if err := ValidateFileName(name); err != nil {
		f.logger.Warnf("Upload rejected: file=%s error=%v", name, err)
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		text, err := f.read(ctx, r)
		if err != nil {
			f.logger.Errorf("Upload read failed: file=%s error=%v", name, err)
			done <- err
			return
		}
		f.logger.Infof("Upload read: file=%s bytes=%d", name, len(text))
		f.controller.SetText(name, text)
		done <- nil
	}()
	return done, nil
}

func (f *FileIngestor) read(ctx context.Context, r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(buf)
		if int64(sb.Len()+n) > f.maxBytes {
			return "", fmt.Errorf("%w: limit %d bytes", ErrFileTooLarge, f.maxBytes)
		}
		sb.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("reading upload: %w", err)
		}
	}
}
