package store_test

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/store"
)

func openTemp(t *testing.T) *store.TrustStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "trust.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fakeHash(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func TestAddHasRemove(t *testing.T) {
	s := openTemp(t)
	h := fakeHash("a")

	ok, err := s.Has(h)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Add(h, "main.arc"))
	ok, err = s.Has(h)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Remove(h))
	ok, err = s.Has(h)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddNormalizesCase(t *testing.T) {
	s := openTemp(t)
	h := fakeHash("b")
	require.NoError(t, s.Add(strings.ToUpper(h), "upper"))
	ok, err := s.Has(h)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAddRejectsNonHashes(t *testing.T) {
	s := openTemp(t)
	require.Error(t, s.Add("not-a-hash", ""))
	require.Error(t, s.Add(fakeHash("c")[:40], ""))
}

func TestReAddUpdatesLabel(t *testing.T) {
	s := openTemp(t)
	h := fakeHash("d")
	require.NoError(t, s.Add(h, "old"))
	require.NoError(t, s.Add(h, "new"))
	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new", entries[0].Label)
}

func TestHashSet(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Add(fakeHash("x"), ""))
	require.NoError(t, s.Add(fakeHash("y"), ""))
	set, err := s.HashSet()
	require.NoError(t, err)
	require.Len(t, set, 2)
	require.True(t, set[fakeHash("x")])
}

func TestMastBlobRoundtrip(t *testing.T) {
	s := openTemp(t)
	h := fakeHash("blob")
	content := []byte(`{"k":"Block"}`)

	_, ok, err := s.GetMast(h)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.PutMast(h, content))
	got, ok, err := s.GetMast(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, content, got)
}

func TestStat(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Add(fakeHash("1"), ""))
	require.NoError(t, s.PutMast(fakeHash("2"), []byte("{}")))
	st, err := s.Stat()
	require.NoError(t, err)
	require.Equal(t, 1, st.TrustedCount)
	require.Equal(t, 1, st.MastCount)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trust.db")

	s, err := store.Open(path)
	require.NoError(t, err)
	h := fakeHash("persist")
	require.NoError(t, s.Add(h, "keep"))
	require.NoError(t, s.Close())

	s2, err := store.Open(path)
	require.NoError(t, err)
	defer s2.Close()
	ok, err := s2.Has(h)
	require.NoError(t, err)
	require.True(t, ok)
}
