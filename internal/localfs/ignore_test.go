package localfs

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreList_Defaults(t *testing.T) {
	ignore, err := LoadIgnoreList(afero.NewMemMapFs(), root, nil)
	require.NoError(t, err)

	assert.True(t, ignore.ShouldIgnore(IgnoreFileName))
	assert.True(t, ignore.ShouldIgnore("snes/.DS_Store"))
	assert.True(t, ignore.ShouldIgnore("snes/.zelda.srm"+tempMarker+"123"))
	assert.False(t, ignore.ShouldIgnore("snes/zelda.srm"))
	assert.False(t, ignore.ShouldIgnore(""))
}

func TestIgnoreList_CustomRules(t *testing.T) {
	mem := afero.NewMemMapFs()
	rules := []byte(`
# comment
**/*.state
private/
`)
	require.NoError(t, afero.WriteFile(mem, filepath.Join(root, IgnoreFileName), rules, 0o644))

	ignore, err := LoadIgnoreList(mem, root, []string{"gba/*.bak"})
	require.NoError(t, err)

	assert.True(t, ignore.ShouldIgnore("snes/zelda.state"))
	assert.True(t, ignore.ShouldIgnore("private/notes.srm"))
	assert.True(t, ignore.ShouldIgnore("/gba/pokemon.bak"), "leading slash is tolerated")
	assert.False(t, ignore.ShouldIgnore("gba/sub/pokemon.bak"))
	assert.False(t, ignore.ShouldIgnore("snes/zelda.srm"))
}

func TestIgnoreList_InvalidExclude(t *testing.T) {
	_, err := LoadIgnoreList(afero.NewMemMapFs(), root, []string{"[unterminated"})
	assert.ErrorContains(t, err, "invalid exclude pattern")
}

func TestIgnoreList_Nil(t *testing.T) {
	var ignore *IgnoreList
	assert.False(t, ignore.ShouldIgnore("anything"))
}
