package mipiid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softi3c/ccc"
)

const table = `# test table
0104  Acme Sensors
	0001  Thermometer
	0002  Barometer
	zzzz  Broken
0105  Other Corp
	0001  Widget
ffff  Out of range
	0009  Orphan
not a line
	0003  Also orphan
`

func TestParse(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Parse(strings.NewReader(table)))

	makers, parts := tbl.Len()
	assert.Equal(t, 2, makers)
	assert.Equal(t, 3, parts)
	assert.Equal(t, "Acme Sensors", tbl.Manufacturer(0x0104))
	assert.Equal(t, "Barometer", tbl.Part(0x0104, 2))
	assert.Equal(t, "Widget", tbl.Part(0x0105, 1))
	assert.Empty(t, tbl.Part(0x0105, 3))
	assert.Empty(t, tbl.Manufacturer(0x7FFF))
}

func TestDescribe(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Parse(strings.NewReader(table)))

	tests := []struct {
		name string
		pid  ccc.PID
		want string
	}{
		{"known part", ccc.NewPID(0x0104, false, 1, 0, 0), "Acme Sensors Thermometer"},
		{"unknown part", ccc.NewPID(0x0104, false, 9, 0, 0), "Acme Sensors"},
		{"random ID", ccc.NewPID(0x0104, true, 1, 0, 0), "Acme Sensors"},
		{"unknown manufacturer", ccc.NewPID(0x0200, false, 1, 0, 0), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tbl.Describe(tt.pid))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mipi.ids")
	require.NoError(t, os.WriteFile(path, []byte(table), 0o600))
	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Other Corp", tbl.Manufacturer(0x0105))

	_, err = Load(filepath.Join(t.TempDir(), "missing.ids"))
	assert.Error(t, err)
}
