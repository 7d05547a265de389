package transfer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"

	"github.com/gabriel-vasile/mimetype"
)

// Source is a file to upload. Chunks are read through Reader at their own
// offsets, so workers never share a read position.
type Source struct {
	Name     string
	Size     int64
	MimeType string
	ModTime  time.Time
	Reader   io.ReaderAt

	path   string
	closer io.Closer
}

// Close releases the underlying file, if any. A source from FileSource can
// be opened again afterwards.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	if s.path != "" {
		s.Reader = nil
	}
	return err
}

// FileSource describes path for upload without opening it. The file is
// opened when its transfer starts and closed when the transfer ends.
func FileSource(path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &Source{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		path:    path,
	}, nil
}

// open readies the source for reading and detects its MIME type from
// content. Sources that already have a Reader are left alone.
func (s *Source) open() error {
	if s.Reader != nil {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, s.path)
		}
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	if s.MimeType == "" {
		mime, err := mimetype.DetectReader(io.NewSectionReader(f, 0, s.Size))
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to detect type of %s: %w", s.path, err)
		}
		s.MimeType = mime.String()
	}

	s.Reader = f
	s.closer = f
	return nil
}

// BytesSource wraps in-memory content as a Source.
func BytesSource(name string, data []byte) *Source {
	return &Source{
		Name:     name,
		Size:     int64(len(data)),
		MimeType: mimetype.Detect(data).String(),
		ModTime:  time.Now(),
		Reader:   bytes.NewReader(data),
	}
}

// chunkCount returns how many chunks of chunkSize cover size bytes.
func chunkCount(size int64, chunkSize int) int {
	if size <= 0 {
		return 0
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}

// readChunk reads chunk index of src into buf and returns the filled slice.
func readChunk(src *Source, buf []byte, index int) ([]byte, error) {
	off := int64(index) * int64(len(buf))
	n := int64(len(buf))
	if rest := src.Size - off; rest < n {
		n = rest
	}

	got, err := src.Reader.ReadAt(buf[:n], off)
	if int64(got) == n {
		return buf[:n], nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("failed to read chunk %d of %s: %w", index, src.Name, err)
}
