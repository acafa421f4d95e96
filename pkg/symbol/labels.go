package symbol

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadViceLabels reads a VICE monitor label file, one label per line:
//
//	al C:080d .start
//	al 0810 .loop
//
// Lines that do not start with "al" are ignored.
func (p *Program) LoadViceLabels(r io.Reader) (int, error) {
	type label struct {
		name string
		addr uint16
	}
	var parsed []label

	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || !strings.EqualFold(fields[0], "al") {
			continue
		}
		if len(fields) != 3 {
			return 0, fmt.Errorf("label file line %d: want 'al <addr> <name>', got %q", lineno, sc.Text())
		}

		addrStr := fields[1]
		if i := strings.IndexByte(addrStr, ':'); i >= 0 {
			addrStr = addrStr[i+1:]
		}
		addr, err := strconv.ParseUint(addrStr, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("label file line %d: invalid address %q: %v", lineno, fields[1], err)
		}
		parsed = append(parsed, label{name: fields[2], addr: uint16(addr)})
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range parsed {
		p.addLabel(l.name, l.addr)
	}
	return len(parsed), nil
}

// LoadFile loads debug data from path, picking the loader by extension:
// ".dbg" is a KickAssembler debug file, anything else a VICE label file.
func (p *Program) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".dbg") {
		return p.LoadKickDebug(f)
	}
	return p.LoadViceLabels(f)
}
