package receipts

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"kharcha/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSaveOpenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("fake jpeg bytes")

	ref, err := store.Save(7, bytes.NewReader(payload), "receipt.JPG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "7_"))
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	rc, err := store.Open(ref)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got, "resolved bytes must match what was stored")
}

func TestSaveRejectsDisallowedExtensions(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"doc.pdf", "script.sh", "noext", "archive.tar.gz"} {
		_, err := store.Save(1, bytes.NewReader([]byte("x")), name)
		assert.ErrorIs(t, err, core.ErrExtensionNotAllowed, "filename %q", name)
	}
}

func TestAllowedExtension(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.jpeg", "a.png", "a.gif", "a.bmp", "A.PNG"} {
		assert.True(t, AllowedExtension(name), "expected %q allowed", name)
	}
	for _, name := range []string{"a.pdf", "a.txt", "a", ".jpg.exe"} {
		assert.False(t, AllowedExtension(name), "expected %q rejected", name)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ref, err := store.Save(1, bytes.NewReader([]byte("x")), "r.png")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ref))
	require.NoError(t, store.Delete(ref), "second delete must not fail")

	_, err = store.Open(ref)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPathTraversalRejected(t *testing.T) {
	store := newTestStore(t)
	for _, ref := range []string{"../secret", "a/b.jpg", "..", ".hidden", ""} {
		_, err := store.Open(ref)
		assert.ErrorIs(t, err, core.ErrNotFound, "ref %q", ref)
		assert.ErrorIs(t, store.Delete(ref), core.ErrNotFound, "ref %q", ref)
	}
}

func TestList(t *testing.T) {
	store := newTestStore(t)
	ref1, err := store.Save(1, bytes.NewReader([]byte("a")), "a.jpg")
	require.NoError(t, err)
	ref2, err := store.Save(2, bytes.NewReader([]byte("b")), "b.png")
	require.NoError(t, err)

	artifacts, err := store.List()
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	refs := []string{artifacts[0].Ref, artifacts[1].Ref}
	assert.Contains(t, refs, ref1)
	assert.Contains(t, refs, ref2)
}
