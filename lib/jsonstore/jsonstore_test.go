package jsonstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	type record struct {
		ID    string   `json:"id"`
		Names []string `json:"names"`
	}

	// parent directories are created on demand
	path := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")
	in := record{ID: "15104486", Names: []string{"가", "나"}}
	require.NoError(t, Save(path, in))
	require.True(t, Exists(path))

	var out record
	require.NoError(t, Load(path, &out))
	require.Equal(t, in, out)

	// no temp file debris next to the checkpoint
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLoadMissing(t *testing.T) {
	var out map[string]any
	err := Load(filepath.Join(t.TempDir(), "nope.json"), &out)
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}

func TestAppendLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.txt")
	require.NoError(t, AppendLine(path, "첫번째 항목: 실패"))
	require.NoError(t, AppendLine(path, "두번째 항목: 실패"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "첫번째 항목: 실패\n두번째 항목: 실패\n", string(data))
}
