package readers

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TextReader_CanRead(t *testing.T) {
	r := TextReader{}
	assert.True(t, r.CanRead("some/file.txt"))
	assert.True(t, r.CanRead("some/file.md"))
	assert.True(t, r.CanRead("some/FILE.MD"))
	assert.True(t, r.CanRead("some/file.markdown"))
	assert.False(t, r.CanRead("some/file.pdf"))
}

func Test_TextReader_ReadText(t *testing.T) {
	r := TextReader{}

	txt, err := r.ReadText("note.md", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", txt)

	txt, err = r.ReadText("note.md", append([]byte{0xEF, 0xBB, 0xBF}, "zażółć"...))
	require.NoError(t, err)
	assert.Equal(t, "zażółć", txt)

	_, err = r.ReadText("note.md", []byte{0xff, 0xfe, 0x00})
	assert.Error(t, err)
}

func Test_UniversalReader_CanRead(t *testing.T) {
	r := UniversalReader{}
	assert.True(t, r.CanRead("some/file.docx"))
	assert.True(t, r.CanRead("some/file.odt"))
	assert.True(t, r.CanRead("some/file.pdf"))
	assert.True(t, r.CanRead("some/file.xml"))
	assert.False(t, r.CanRead("some/file.md"))
}

func Test_UniversalReader_ReadText(t *testing.T) {
	if _, err := exec.LookPath("tidy"); err != nil {
		t.Skip("xml conversion needs the tidy binary")
	}
	r := UniversalReader{}

	txt, err := r.ReadText("doc.xml", []byte("<doc><p>hello world</p></doc>"))
	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(txt), "hello world")
}

func Test_Registry(t *testing.T) {
	reg := Default(false)
	assert.True(t, reg.CanRead("a.md"))
	assert.False(t, reg.CanRead("a.pdf"))

	_, err := reg.ReadText("a.pdf", []byte("%PDF"))
	assert.ErrorContains(t, err, ".pdf")

	reg = Default(true)
	assert.True(t, reg.CanRead("a.pdf"))

	txt, err := reg.ReadText("a.md", []byte("# Title"))
	require.NoError(t, err)
	assert.Equal(t, "# Title", txt)
}
