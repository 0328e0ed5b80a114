package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maepena22/receipt/internal/entity"
)

func TestSaveUpload_TimestampPrefixedName(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(1700000000123) }

	name, err := store.SaveUpload(entity.UploadedFile{
		OriginalName: "receipt.png",
		MIMEType:     "image/png",
		Content:      []byte("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1700000000123-receipt.png", name)

	content, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), content)
}

func TestSaveUpload_StripsDirectoryComponents(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	name, err := store.SaveUpload(entity.UploadedFile{
		OriginalName: "../../etc/passwd.png",
		Content:      []byte("x"),
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d+-passwd\.png$`), name)
	assert.FileExists(t, filepath.Join(dir, name))
}

func TestList_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	ts := int64(1700000000000)
	for _, n := range []string{"a.png", "b.png", "c.png"} {
		current := ts
		store.now = func() time.Time { return time.UnixMilli(current) }
		_, err := store.SaveUpload(entity.UploadedFile{OriginalName: n, Content: []byte(n)})
		require.NoError(t, err)
		ts += 1000
	}

	names, err := store.List()
	require.NoError(t, err)
	require.Len(t, names, 3)
	assert.Equal(t, "1700000002000-c.png", names[0])
	assert.Equal(t, "1700000000000-a.png", names[2])
}

func TestNewFileStore_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	_, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}
