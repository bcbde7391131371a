package envstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	_, ok := s.Get("anything")
	require.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	s := &Store{values: map[string]string{}}
	s.Set("API_KEY", "secret")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	v, ok := loaded.Get("API_KEY")
	require.True(t, ok)
	require.Equal(t, "secret", v)
}

func TestResolve_FallsBackToProcessEnv(t *testing.T) {
	t.Setenv("PHOTON_ENVSTORE_TEST", "from-process")
	s := &Store{values: map[string]string{}}

	v, ok := s.Resolve("PHOTON_ENVSTORE_TEST")
	require.True(t, ok)
	require.Equal(t, "from-process", v)
}

func TestResolve_StoreTakesPrecedenceOverProcessEnv(t *testing.T) {
	t.Setenv("PHOTON_ENVSTORE_TEST2", "from-process")
	s := &Store{values: map[string]string{"PHOTON_ENVSTORE_TEST2": "from-store"}}

	v, ok := s.Resolve("PHOTON_ENVSTORE_TEST2")
	require.True(t, ok)
	require.Equal(t, "from-store", v)
}

func TestResolve_NotFound(t *testing.T) {
	s := &Store{values: map[string]string{}}
	_, ok := s.Resolve("PHOTON_ENVSTORE_DOES_NOT_EXIST")
	require.False(t, ok)
}
