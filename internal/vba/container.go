package vba

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
)

// ProjectEntryPath is the fixed archive path of the embedded macro-project
// binary in macro-enabled workbooks.
const ProjectEntryPath = "xl/vbaProject.bin"

// DefaultCompressionLevel favors speed over ratio; re-serialized workbooks
// can run to tens of megabytes.
const DefaultCompressionLevel = flate.BestSpeed

// OpenArchive parses the workbook bytes as a ZIP container. A payload that
// does not open as a ZIP archive is reported as common.ErrCorruptedArchive,
// which is distinct from the valid "archive opens, entry missing" state.
func OpenArchive(data []byte) (*zip.Reader, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptedArchive, err)
	}
	return r, nil
}

// ExtractEntry returns the decompressed contents of the named entry. A
// missing entry is a valid outcome, reported as (nil, false, nil); only a
// failure to read an entry that exists is an error.
func ExtractEntry(r *zip.Reader, path string) ([]byte, bool, error) {
	for _, f := range r.File {
		if f.Name != path {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, fmt.Errorf("open entry %s: %w", path, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, true, fmt.Errorf("read entry %s: %w", path, err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// RebuildArchive re-serializes the archive, substituting replacement for the
// contents of the named entry. When replacement is nil every entry is copied
// through unchanged, which is how an archive without the target entry is
// still returned as a processed artifact. Entry names, order, methods and
// modification times are preserved; Deflate entries are recompressed at the
// given level.
func RebuildArchive(r *zip.Reader, path string, replacement []byte, level int) ([]byte, error) {
	var out bytes.Buffer
	w := zip.NewWriter(&out)
	w.RegisterCompressor(zip.Deflate, func(dst io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(dst, level)
	})

	for _, f := range r.File {
		hdr := &zip.FileHeader{
			Name:     f.Name,
			Method:   f.Method,
			Modified: f.Modified,
			Comment:  f.Comment,
		}
		dst, err := w.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", f.Name, err)
		}
		if replacement != nil && f.Name == path {
			if _, err := dst.Write(replacement); err != nil {
				return nil, fmt.Errorf("write entry %s: %w", f.Name, err)
			}
			continue
		}
		src, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			return nil, fmt.Errorf("copy entry %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return out.Bytes(), nil
}
