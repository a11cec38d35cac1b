package datago

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestResolveExtension(t *testing.T) {
	cases := []struct {
		name       string
		item       Item
		expected   string
		expectedBy ExtSource
	}{
		{
			name:       "detail field beats everything",
			item:       Item{Extension: "XLSX", TitleFormat: "CSV", FormatTypes: []string{"PDF"}, MediaType: "이미지"},
			expected:   "xlsx",
			expectedBy: ExtFromFormatTag,
		},
		{
			name:       "title token beats format spans",
			item:       Item{TitleFormat: "HWP", FormatTypes: []string{"CSV"}},
			expected:   "hwp",
			expectedBy: ExtFromTitle,
		},
		{
			name:       "first recognized format span",
			item:       Item{FormatTypes: []string{"LINK", "CSV", "XLSX"}},
			expected:   "csv",
			expectedBy: ExtFromFormatTypes,
		},
		{
			name:       "image media type",
			item:       Item{MediaType: "이미지"},
			expected:   "jpg",
			expectedBy: ExtFromMediaType,
		},
		{
			name:       "nothing known",
			item:       Item{MediaType: "텍스트"},
			expected:   "csv",
			expectedBy: ExtDefault,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			ext, source := ResolveExtension(test.item)
			require.Equal(t, test.expected, ext)
			require.Equal(t, test.expectedBy, source)
		})
	}
}

func TestExtensionFromFileDetailID(t *testing.T) {
	{
		ext, ok := ExtensionFromFileDetailID("uddi:abc123_2.csv")
		require.True(t, ok)
		require.Equal(t, "csv", ext)
	}
	{
		_, ok := ExtensionFromFileDetailID("uddi:abc123_2")
		require.False(t, ok)
	}
	{
		// unknown extensions are not trusted
		_, ok := ExtensionFromFileDetailID("abc123_2.exe")
		require.False(t, ok)
	}
}

func TestRefFromFileDetailID(t *testing.T) {
	cases := []struct {
		token    string
		expected FileRef
		ok       bool
	}{
		{
			token:    "uddi:4ef3e2a1-8b9c_3.csv",
			expected: FileRef{AtchFileID: "4ef3e2a1-8b9c", FileDetailSn: "3"},
			ok:       true,
		},
		{
			token:    "uddi:4ef3e2a1-8b9c_2",
			expected: FileRef{AtchFileID: "4ef3e2a1-8b9c", FileDetailSn: "2"},
			ok:       true,
		},
		{
			token:    "4ef3e2a1-8b9c",
			expected: FileRef{AtchFileID: "4ef3e2a1-8b9c", FileDetailSn: "1"},
			ok:       true,
		},
		{token: "", ok: false},
		{token: "uddi:", ok: false},
	}

	for _, test := range cases {
		ref, ok := RefFromFileDetailID(test.token)
		require.Equal(t, test.ok, ok, "token=%q", test.token)
		if ok {
			require.Equal(t, test.expected, ref, "token=%q", test.token)
		}
	}
}

func TestSynthesizeRef(t *testing.T) {
	{
		ref := SynthesizeRef("15104486")
		require.Equal(t, FileRef{AtchFileID: "FILE_000000015104486", FileDetailSn: "1"}, ref)
		require.Len(t, ref.AtchFileID, 20)
	}
	{
		// oversized ids keep the template width by dropping leading chars
		ref := SynthesizeRef("1234567890123456789")
		require.Len(t, ref.AtchFileID, 20)
		require.Equal(t, "_1234567890123456789", ref.AtchFileID)
	}
}

func TestRetrySerials(t *testing.T) {
	cases := []struct {
		tried    string
		expected []string
	}{
		{tried: "1", expected: []string{"0", "2", "3"}},
		{tried: "2", expected: []string{"0", "3", "1"}},
		{tried: "9", expected: []string{"0", "2", "3", "1"}},
	}

	for _, test := range cases {
		if diff := cmp.Diff(test.expected, RetrySerials(test.tried)); diff != "" {
			t.Fatalf("tried=%q (-want +got):\n%s", test.tried, diff)
		}
	}
}
