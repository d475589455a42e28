package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMsg = "testdata/test.msg"

func TestOpenFileLoadsTree(t *testing.T) {
	root, err := OpenFile(sampleMsg)
	require.NoError(t, err)

	entries, err := root.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 54)
	assert.Equal(t, Entry{Name: "__nameid_version1.0", Kind: KindStorage}, entries[0])
	assert.Equal(t, []Entry{
		{Name: "__properties_version1.0", Kind: KindStream},
		{Name: "__recip_version1.0_#00000000", Kind: KindStorage},
		{Name: "__attach_version1.0_#00000000", Kind: KindStorage},
		{Name: "__attach_version1.0_#00000001", Kind: KindStorage},
	}, entries[len(entries)-4:])

	subject, err := root.ReadStream("__substg1.0_0037001F")
	require.NoError(t, err)
	assert.Equal(t, []byte{'t', 0, 'e', 0, 's', 0, 't', 0}, subject)

	nameid, err := root.OpenStorage("__nameid_version1.0")
	require.NoError(t, err)
	named, err := nameid.Entries()
	require.NoError(t, err)
	assert.Len(t, named, 19)

	doc, err := root.OpenStorage("__attach_version1.0_#00000000")
	require.NoError(t, err)
	data, err := doc.ReadStream("__substg1.0_37010102")
	require.NoError(t, err)
	assert.Len(t, data, 12288)
	assert.Equal(t, []byte{0xD0, 0xCF, 0x11, 0xE0}, data[:4])

	gif, err := root.OpenStorage("__attach_version1.0_#00000001")
	require.NoError(t, err)
	data, err = gif.ReadStream("__substg1.0_37010102")
	require.NoError(t, err)
	assert.Len(t, data, 2864)
	assert.Equal(t, "GIF89a", string(data[:6]))

	_, err = gif.OpenStorage("__substg1.0_3701000D")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenCFBMatchesOpenFile(t *testing.T) {
	file, err := os.Open(sampleMsg)
	require.NoError(t, err)
	defer file.Close()

	fromReader, err := OpenCFB(file)
	require.NoError(t, err)
	fromPath, err := OpenFile(sampleMsg)
	require.NoError(t, err)
	assert.Equal(t, fromPath, fromReader)
}
