package koreanenc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

func encodeEUCKR(t *testing.T, s string) []byte {
	out, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte(s))
	require.NoError(t, err)
	return out
}

func TestRecoverUTF8(t *testing.T) {
	const sample = "정류소명,위도,경도\n전주역,35.84,127.16\n"

	{
		// already utf-8: untouched
		out, ok := RecoverUTF8([]byte(sample))
		require.False(t, ok)
		require.Equal(t, []byte(sample), out)
	}
	{
		// legacy encoded: transcoded
		legacy := encodeEUCKR(t, sample)
		out, ok := RecoverUTF8(legacy)
		require.True(t, ok)
		require.Equal(t, sample, string(out))
	}
	{
		// binary garbage: untouched, never transcoded
		binary := []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xff, 0x00, 0xff}
		out, ok := RecoverUTF8(binary)
		require.False(t, ok)
		require.Equal(t, binary, out)
	}
}

func TestRecoverFile(t *testing.T) {
	const sample = "기관명,전화번호\n전북특별자치도청,063-280-2114\n"

	path := filepath.Join(t.TempDir(), "data.csv")
	err := os.WriteFile(path, encodeEUCKR(t, sample), 0644)
	require.NoError(t, err)

	converted, err := RecoverFile(path)
	require.NoError(t, err)
	require.True(t, converted)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, sample, string(contents))

	// second pass is a no-op
	converted, err = RecoverFile(path)
	require.NoError(t, err)
	require.False(t, converted)
}
