// Package mipiid names the manufacturer and part fields of I3C provisioned
// IDs.
//
// The table is read from a text file in the layout of the usb.ids
// database: a manufacturer line holds a hexadecimal MIPI manufacturer ID,
// two spaces and a name; the part lines that follow are indented with a tab
// and hold a hexadecimal part ID, two spaces and a name. Lines starting
// with '#' are comments.
//
//	# MIPI manufacturer IDs
//	0104  Example Semiconductor
//		0001  Temperature sensor
//
// A Table is safe for concurrent use.
package mipiid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ardnew/softi3c/ccc"
)

// Table maps manufacturer and part IDs to names.
type Table struct {
	mu     sync.RWMutex
	makers map[uint16]string
	parts  map[uint32]string // mid<<16 | part
}

// New returns an empty table.
func New() *Table {
	return &Table{
		makers: make(map[uint16]string),
		parts:  make(map[uint32]string),
	}
}

// Load reads the file at path into a new table.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t := New()
	if err := t.Parse(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse adds the entries read from r. Malformed lines are skipped; a part
// line outside any manufacturer block is ignored.
func (t *Table) Parse(r io.Reader) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sc := bufio.NewScanner(r)
	var mid uint16
	inMaker := false
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		part := line[0] == '\t'
		id, name, ok := splitEntry(strings.TrimPrefix(line, "\t"))
		switch {
		case !ok:
			if !part {
				inMaker = false
			}
		case part:
			if inMaker {
				t.parts[uint32(mid)<<16|uint32(id)] = name
			}
		case id > 0x7FFF:
			inMaker = false
		default:
			mid, inMaker = uint16(id), true
			t.makers[mid] = name
		}
	}
	return sc.Err()
}

func splitEntry(s string) (uint16, string, bool) {
	hexID, name, ok := strings.Cut(s, "  ")
	if !ok {
		return 0, "", false
	}
	id, err := strconv.ParseUint(hexID, 16, 16)
	if err != nil {
		return 0, "", false
	}
	name = strings.TrimSpace(name)
	return uint16(id), name, name != ""
}

// Manufacturer returns the name of a MIPI manufacturer ID, or "".
func (t *Table) Manufacturer(mid uint16) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.makers[mid]
}

// Part returns the name of a part, or "".
func (t *Table) Part(mid, part uint16) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.parts[uint32(mid)<<16|uint32(part)]
}

// Describe names the device behind pid. Parts are only looked up for
// vendor-fixed IDs; with a random ID the part field carries no meaning.
func (t *Table) Describe(pid ccc.PID) string {
	mid := pid.MIPIManufacturerID()
	maker := t.Manufacturer(mid)
	if maker == "" {
		return ""
	}
	if pid.IDTypeSelector() == 0 {
		if part := t.Part(mid, pid.PartID()); part != "" {
			return maker + " " + part
		}
	}
	return maker
}

// Len returns the number of manufacturers and parts.
func (t *Table) Len() (makers, parts int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.makers), len(t.parts)
}
