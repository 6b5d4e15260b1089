package vba

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
)

// buildWorkbook assembles a minimal ZIP archive from name→contents pairs.
func buildWorkbook(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpenArchive_Corrupted(t *testing.T) {
	_, err := OpenArchive([]byte("definitely not a zip file"))
	assert.ErrorIs(t, err, common.ErrCorruptedArchive)
}

func TestExtractEntry_Present(t *testing.T) {
	archive := buildWorkbook(t, map[string][]byte{
		"[Content_Types].xml": []byte("<Types/>"),
		ProjectEntryPath:      []byte("binary macro project"),
	})

	r, err := OpenArchive(archive)
	require.NoError(t, err)

	data, present, err := ExtractEntry(r, ProjectEntryPath)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, []byte("binary macro project"), data)
}

func TestExtractEntry_Absent(t *testing.T) {
	archive := buildWorkbook(t, map[string][]byte{
		"xl/workbook.xml": []byte("<workbook/>"),
	})

	r, err := OpenArchive(archive)
	require.NoError(t, err)

	data, present, err := ExtractEntry(r, ProjectEntryPath)
	require.NoError(t, err, "missing entry is a valid, non-error state")
	assert.False(t, present)
	assert.Nil(t, data)
}

func TestRebuildArchive_ReplacesOnlyTarget(t *testing.T) {
	archive := buildWorkbook(t, map[string][]byte{
		"xl/workbook.xml": []byte("<workbook/>"),
		ProjectEntryPath:  []byte("old contents"),
	})

	r, err := OpenArchive(archive)
	require.NoError(t, err)

	rebuilt, err := RebuildArchive(r, ProjectEntryPath, []byte("new contents"), DefaultCompressionLevel)
	require.NoError(t, err)

	r2, err := OpenArchive(rebuilt)
	require.NoError(t, err)

	project, present, err := ExtractEntry(r2, ProjectEntryPath)
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, []byte("new contents"), project)

	sheet, present, err := ExtractEntry(r2, "xl/workbook.xml")
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, []byte("<workbook/>"), sheet)
}

func TestRebuildArchive_PassthroughWithoutReplacement(t *testing.T) {
	archive := buildWorkbook(t, map[string][]byte{
		"xl/workbook.xml": []byte("<workbook/>"),
		"docProps/app.xml": []byte("<Properties/>"),
	})

	r, err := OpenArchive(archive)
	require.NoError(t, err)

	rebuilt, err := RebuildArchive(r, ProjectEntryPath, nil, DefaultCompressionLevel)
	require.NoError(t, err)

	r2, err := OpenArchive(rebuilt)
	require.NoError(t, err)
	require.Len(t, r2.File, 2)
	for _, f := range r2.File {
		got, present, err := ExtractEntry(r2, f.Name)
		require.NoError(t, err)
		require.True(t, present)

		want, _, err := ExtractEntry(r, f.Name)
		require.NoError(t, err)
		assert.Equal(t, want, got, "entry %s must be content-equivalent", f.Name)
	}
}

func TestRebuildArchive_PreservesEntryOrder(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range []string{"[Content_Types].xml", "xl/workbook.xml", ProjectEntryPath} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	r, err := OpenArchive(buf.Bytes())
	require.NoError(t, err)

	rebuilt, err := RebuildArchive(r, ProjectEntryPath, []byte("x"), DefaultCompressionLevel)
	require.NoError(t, err)

	r2, err := OpenArchive(rebuilt)
	require.NoError(t, err)
	var names []string
	for _, f := range r2.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"[Content_Types].xml", "xl/workbook.xml", ProjectEntryPath}, names)
}

func TestRebuildArchive_ErrorIsNotCorruption(t *testing.T) {
	// A rebuild failure must not be confused with the corrupted-archive
	// sentinel used for unreadable input.
	archive := buildWorkbook(t, map[string][]byte{"a.txt": []byte("a")})
	r, err := OpenArchive(archive)
	require.NoError(t, err)

	_, err = RebuildArchive(r, ProjectEntryPath, nil, DefaultCompressionLevel)
	require.NoError(t, err)
	assert.False(t, errors.Is(err, common.ErrCorruptedArchive))
}
