package pdb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// buildNamedStreamsTable packs a Named Streams Table in the on-disk shape
// parseNamedStreams expects: a length-prefixed name buffer, then
// {present bitmap, deleted bitmap, hash entries}.
func buildNamedStreamsTable(t *testing.T, entries map[string]uint32) []byte {
	t.Helper()

	// Build the packed NUL-terminated name buffer and remember each name's
	// byte offset within it.
	var namesBuf []byte
	offsets := make(map[string]uint32, len(entries))
	for name := range entries {
		offsets[name] = uint32(len(namesBuf))
		namesBuf = append(namesBuf, []byte(name)...)
		namesBuf = append(namesBuf, 0)
	}

	var out []byte
	out = append(out, u32le(uint32(len(namesBuf)))...)
	out = append(out, namesBuf...)

	out = append(out, u32le(uint32(len(entries)))...) // name count
	out = append(out, u32le(0)...)                     // hash table capacity, unused

	// One present word is plenty for these small tests: set the low
	// len(entries) bits, one per hash entry below.
	out = append(out, u32le(1)...) // present bitmap word count
	var presentBits uint32
	if len(entries) > 0 {
		presentBits = (1 << uint(len(entries))) - 1
	}
	out = append(out, u32le(presentBits)...)

	out = append(out, u32le(0)...) // deleted bitmap word count (none)

	for name, streamIdx := range entries {
		out = append(out, u32le(offsets[name])...)
		out = append(out, u32le(streamIdx)...)
	}

	out = append(out, u32le(0)...) // trailing niMac
	return out
}

func TestParseNamedStreamsTableRoundTrip(t *testing.T) {
	entries := map[string]uint32{
		"/names":    3,
		"/LinkInfo": 7,
	}
	data := buildNamedStreamsTable(t, entries)

	table, next, err := parseNamedStreams(data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), next)

	for name, wantIdx := range entries {
		idx, ok := table.Get(name)
		require.True(t, ok, "expected %q to be present", name)
		require.Equal(t, wantIdx, idx)
	}

	_, ok := table.Get("/missing")
	require.False(t, ok)
	require.ElementsMatch(t, []string{"/names", "/LinkInfo"}, table.Names())
}

func TestParseNamedStreamsTableEmpty(t *testing.T) {
	data := buildNamedStreamsTable(t, nil)
	table, next, err := parseNamedStreams(data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), next)
	require.Empty(t, table.Names())
}

func TestParseNamedStreamsTableRejectsTruncated(t *testing.T) {
	data := buildNamedStreamsTable(t, map[string]uint32{"/names": 1})
	_, _, err := parseNamedStreams(data[:len(data)-8], 0)
	require.Error(t, err)
}

func TestParseNamedStreamsTableHonorsOffset(t *testing.T) {
	entries := map[string]uint32{"/names": 3}
	table := buildNamedStreamsTable(t, entries)
	prefix := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	data := append(append([]byte{}, prefix...), table...)

	parsed, next, err := parseNamedStreams(data, len(prefix))
	require.NoError(t, err)
	require.Equal(t, len(data), next)

	idx, ok := parsed.Get("/names")
	require.True(t, ok)
	require.Equal(t, uint32(3), idx)
}

func TestParseFeatureCodes(t *testing.T) {
	var data []byte
	data = append(data, u32le(uint32(FeatureNoTypeMerge))...)
	data = append(data, u32le(uint32(FeatureMiniPDB))...)

	features := parseFeatureCodes(data)
	require.Equal(t, []FeatureCode{FeatureNoTypeMerge, FeatureMiniPDB}, features)

	info := &PDBInfo{Features: features}
	require.True(t, info.HasFeature(FeatureMiniPDB))
	require.False(t, info.HasFeature(FeatureNoTypeMerge^FeatureMiniPDB))
}

func TestParseFeatureCodesEmpty(t *testing.T) {
	features := parseFeatureCodes(nil)
	require.Empty(t, features)

	info := &PDBInfo{Features: features}
	require.False(t, info.HasFeature(FeatureMiniPDB))
}

func TestNamedStreamsTableGetOnNil(t *testing.T) {
	var table *NamedStreamsTable
	_, ok := table.Get("/names")
	require.False(t, ok)
	require.Empty(t, table.Names())
}
