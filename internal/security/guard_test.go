package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAreaGuard_Check(t *testing.T) {
	root := t.TempDir()
	g, err := NewAreaGuard([]string{root}, nil)
	require.NoError(t, err)

	assert.NoError(t, g.Check(root, OpRead))
	assert.NoError(t, g.Check(filepath.Join(root, "issue", "x.json"), OpWrite))

	err = g.Check(filepath.Join(root, "..", "elsewhere"), OpWrite)
	assert.True(t, errors.Is(err, ErrPathNotAllowed), "got %v", err)

	// Sibling directory sharing the prefix must not match.
	err = g.Check(root+"-sibling", OpRead)
	assert.ErrorIs(t, err, ErrPathNotAllowed)
}

func TestAreaGuard_HomeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	g, err := NewAreaGuard([]string{"~/Agentic"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(home, "Agentic")}, g.Areas())
	assert.NoError(t, g.Check("~/Agentic/feedback", OpRead))
	assert.ErrorIs(t, g.Check(filepath.Join(home, "other"), OpRead), ErrPathNotAllowed)
}

func TestNewAreaGuard_RequiresArea(t *testing.T) {
	_, err := NewAreaGuard([]string{"", "  "}, nil)
	assert.Error(t, err)
}

func TestAllowAll(t *testing.T) {
	var g Guard = AllowAll{}
	assert.NoError(t, g.Check(string(os.PathSeparator), OpDelete))
}
