package symbol

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// kickDebug mirrors the C64debugger document KickAssembler writes with
// -debugdump. Every section carries its column layout in "values".
type kickDebug struct {
	XMLName  xml.Name      `xml:"C64debugger"`
	Sources  kickTable     `xml:"Sources"`
	Segments []kickSegment `xml:"Segment"`
	Labels   kickTable     `xml:"Labels"`
}

type kickSegment struct {
	Name   string      `xml:"name,attr"`
	Values string      `xml:"values,attr"`
	Blocks []kickTable `xml:"Block"`
}

type kickTable struct {
	Values string `xml:"values,attr"`
	Body   string `xml:",chardata"`
}

// rows splits the table body into records keyed by column name.
func (t kickTable) rows(columns string) []map[string]string {
	if columns == "" {
		columns = t.Values
	}
	names := strings.Split(columns, ",")

	var rows []map[string]string
	for _, line := range strings.Split(t.Body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, ",", len(names))
		row := make(map[string]string, len(names))
		for i, f := range fields {
			row[strings.TrimSpace(names[i])] = strings.TrimSpace(f)
		}
		rows = append(rows, row)
	}
	return rows
}

func parseKickNumber(s string) (uint64, error) {
	if strings.HasPrefix(s, "$") {
		return strconv.ParseUint(s[1:], 16, 16)
	}
	return strconv.ParseUint(s, 10, 32)
}

// LoadKickDebug reads a KickAssembler debug dump: source files, the address
// blocks generated for each source line and the labels. Lines are stored
// 0-based. It returns the number of labels loaded.
func (p *Program) LoadKickDebug(r io.Reader) (int, error) {
	var doc kickDebug
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("kick debug file: %v", err)
	}

	sources := map[string]string{}
	for _, row := range doc.Sources.rows("") {
		file := row["FILE"]
		// library sources look like KickAss.jar:/include/autoinclude.asm
		if strings.Contains(file, ".jar:") {
			continue
		}
		sources[row["INDEX"]] = file
	}

	type line struct {
		file string
		line int
		r    AddressRange
	}
	var lines []line

	for _, seg := range doc.Segments {
		for _, block := range seg.Blocks {
			for _, row := range block.rows(seg.Values) {
				file, ok := sources[row["FILE_IDX"]]
				if !ok {
					continue
				}
				start, err := parseKickNumber(row["START"])
				if err != nil {
					return 0, fmt.Errorf("segment %s: start %q: %v", seg.Name, row["START"], err)
				}
				end, err := parseKickNumber(row["END"])
				if err != nil {
					return 0, fmt.Errorf("segment %s: end %q: %v", seg.Name, row["END"], err)
				}
				lineno, err := strconv.Atoi(row["LINE1"])
				if err != nil || lineno < 1 {
					return 0, fmt.Errorf("segment %s: line %q", seg.Name, row["LINE1"])
				}
				rng, err := NewAddressRange(uint16(start), uint16(end))
				if err != nil {
					return 0, fmt.Errorf("segment %s: %v", seg.Name, err)
				}
				lines = append(lines, line{file: file, line: lineno - 1, r: rng})
			}
		}
	}

	type label struct {
		name string
		addr uint16
	}
	var labels []label
	for _, row := range doc.Labels.rows("") {
		addr, err := parseKickNumber(row["ADDRESS"])
		if err != nil {
			return 0, fmt.Errorf("label %s: address %q: %v", row["NAME"], row["ADDRESS"], err)
		}
		labels = append(labels, label{name: row["NAME"], addr: uint16(addr)})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range lines {
		p.addLine(l.file, l.line, l.r)
	}
	for _, l := range labels {
		p.addLabel(l.name, l.addr)
	}
	return len(labels), nil
}
