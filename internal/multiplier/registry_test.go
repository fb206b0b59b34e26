package multiplier

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesFactorAndThreshold(t *testing.T) {
	reg, err := Load(strings.NewReader("x2:note-2x\nx1_5:note-1.5x\n"))
	require.NoError(t, err)

	m, ok := reg.Lookup("note-2x")
	require.True(t, ok)
	assert.True(t, m.Factor.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, uint16(31784), m.Threshold)

	m2, ok := reg.Lookup("note-1.5x")
	require.True(t, ok)
	assert.True(t, m2.Factor.Equal(decimal.NewFromFloat(1.5)))
	assert.Equal(t, uint16(42379), m2.Threshold)
}

func TestLoad_IgnoresBlankLines(t *testing.T) {
	reg, err := Load(strings.NewReader("\nx10:note-10x\n\n"))
	require.NoError(t, err)
	_, ok := reg.Lookup("note-10x")
	assert.True(t, ok)
}

func TestLoad_RejectsMissingSeparator(t *testing.T) {
	_, err := Load(strings.NewReader("x2 note-2x"))
	assert.Error(t, err)
}

func TestLoad_RejectsFactorAtOrBelowOne(t *testing.T) {
	_, err := Load(strings.NewReader("x1:note-1x"))
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownThreshold(t *testing.T) {
	_, err := Load(strings.NewReader("x7:note-7x"))
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidDecimal(t *testing.T) {
	_, err := Load(strings.NewReader("xabc:note-bad"))
	assert.Error(t, err)
}

func TestLookup_UnknownNoteIDReturnsFalse(t *testing.T) {
	reg, err := Load(strings.NewReader("x2:note-2x"))
	require.NoError(t, err)
	_, ok := reg.Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestLoadFile_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "multipliers.txt")
	require.NoError(t, os.WriteFile(path, []byte("x100:note-100x\n"), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	m, ok := reg.Lookup("note-100x")
	require.True(t, ok)
	assert.Equal(t, uint16(635), m.Threshold)
}

func TestLoadFile_MissingFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestMultiplier_WonIsBelowThreshold(t *testing.T) {
	reg, err := Load(strings.NewReader("x2:note-2x\n"))
	require.NoError(t, err)
	m, _ := reg.Lookup("note-2x")

	assert.True(t, m.Won(0))
	assert.True(t, m.Won(m.Threshold-1))
	assert.False(t, m.Won(m.Threshold))
	assert.False(t, m.Won(65535))
}
