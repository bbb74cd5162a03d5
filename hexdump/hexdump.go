// Package hexdump renders target memory windows for the control surface:
// address column, grouped hex bytes, ASCII gutter.
package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"memhound/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Options customizes the dump layout.
type Options struct {
	// BytesPerLine is the number of bytes shown per line.
	BytesPerLine int

	// GroupSize groups hex bytes (1, 2, 4 or 8).
	GroupSize int

	// ShowASCII toggles the ASCII gutter.
	ShowASCII bool

	// Color toggles ANSI colored output.
	Color bool

	// AddrColor and HexColor style the columns when Color is set.
	AddrColor coloransi.ColorCode
	HexColor  coloransi.ColorCode
}

// DefaultOptions returns the standard 16-byte line layout.
func DefaultOptions() Options {
	return Options{
		BytesPerLine: 16,
		GroupSize:    1,
		ShowASCII:    true,
		Color:        false,
		AddrColor:    coloransi.Cyan,
		HexColor:     coloransi.Green,
	}
}

// Dump renders data as seen at addr in the target's address space.
func Dump(addr process.Address, data []byte, opts Options) string {
	var buf bytes.Buffer
	DumpToWriter(&buf, addr, data, opts)
	return buf.String()
}

// DumpToWriter writes the rendering of data at addr to w.
func DumpToWriter(w io.Writer, addr process.Address, data []byte, opts Options) {
	if opts.BytesPerLine <= 0 {
		opts.BytesPerLine = 16
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = 1
	}

	for off := 0; off < len(data); off += opts.BytesPerLine {
		end := off + opts.BytesPerLine
		if end > len(data) {
			end = len(data)
		}
		formatLine(w, addr+process.Address(off), data[off:end], opts)
	}
}

func formatLine(w io.Writer, addr process.Address, line []byte, opts Options) {
	addrCol := fmt.Sprintf("%012x", uint64(addr))
	if opts.Color {
		addrCol = coloransi.Foreground(opts.AddrColor, addrCol)
	}
	fmt.Fprint(w, addrCol, "  ")

	var groups []string
	for i := 0; i < len(line); i += opts.GroupSize {
		end := i + opts.GroupSize
		if end > len(line) {
			end = len(line)
		}
		groups = append(groups, fmt.Sprintf("%x", line[i:end]))
	}
	hexCol := strings.Join(groups, " ")

	// pad to full width so the ASCII gutter lines up on the last line
	fullGroups := (opts.BytesPerLine + opts.GroupSize - 1) / opts.GroupSize
	width := opts.BytesPerLine*2 + fullGroups - 1
	if len(hexCol) < width {
		hexCol += strings.Repeat(" ", width-len(hexCol))
	}
	if opts.Color {
		hexCol = coloransi.Foreground(opts.HexColor, hexCol)
	}
	fmt.Fprint(w, hexCol)

	if opts.ShowASCII {
		var ascii strings.Builder
		for _, b := range line {
			if unicode.IsPrint(rune(b)) && b < 0x80 {
				ascii.WriteByte(b)
			} else {
				ascii.WriteByte('.')
			}
		}
		fmt.Fprint(w, "  |", ascii.String(), "|")
	}
	fmt.Fprintln(w)
}
