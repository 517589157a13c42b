// Package formats sniffs executable formats and lays a binary out as the
// initial segments of a workspace.
package formats

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"h2gb/engine/internal/workspace"
)

// Formats reported by Detect.
const (
	ELF = "ELF"
	PE  = "PE"
	Raw = "raw"
)

// RawSegment is the name of the single segment of a raw binary.
const RawSegment = ".raw"

// ErrMalformed indicates the data claims a format but could not be parsed.
var ErrMalformed = errors.New("malformed binary")

// Section is one loadable section of a binary.
type Section struct {
	Name       string `json:"name"`
	Address    int64  `json:"address"`
	FileOffset int64  `json:"file_offset"`
	FileSize   int64  `json:"file_size"`
	Flags      uint64 `json:"flags"`
}

// Info is the header summary of a parsed binary.
type Info struct {
	Format     string    `json:"format"`
	Base       int64     `json:"base"`
	Entrypoint int64     `json:"entrypoint"`
	Sections   []Section `json:"sections"`
	Imports    []string  `json:"imports,omitempty"`
}

// Detect returns ELF, PE or raw by magic.
func Detect(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte(elf.ELFMAG)):
		return ELF
	case isPE(data):
		return PE
	}
	return Raw
}

func isPE(data []byte) bool {
	if len(data) < 0x40 || !bytes.HasPrefix(data, []byte("MZ")) {
		return false
	}
	off := int(binary.LittleEndian.Uint32(data[0x3c:]))
	return off >= 0 && off+4 <= len(data) && bytes.Equal(data[off:off+4], []byte("PE\x00\x00"))
}

// Parse reads the header and loadable sections of data in the given format.
// An empty format is detected.
func Parse(data []byte, format string) (*Info, error) {
	if format == "" {
		format = Detect(data)
	}
	switch format {
	case ELF:
		return parseELF(data)
	case PE:
		return parsePE(data)
	case Raw:
		return &Info{
			Format:   Raw,
			Sections: []Section{{Name: RawSegment, FileSize: int64(len(data))}},
		}, nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// Segments returns the initial segments for data: one per loadable section
// with contents, in address order.
func Segments(data []byte, format string) ([]workspace.SegmentSpec, error) {
	info, err := Parse(data, format)
	if err != nil {
		return nil, err
	}

	var specs []workspace.SegmentSpec
	for _, s := range info.Sections {
		if s.FileSize == 0 {
			continue
		}
		end := s.FileOffset + s.FileSize
		if s.FileOffset < 0 || end > int64(len(data)) {
			return nil, fmt.Errorf("%w: section %s runs past the end of the file", ErrMalformed, s.Name)
		}
		spec := workspace.NewSegmentSpec(s.Name, s.Address, data[s.FileOffset:end])
		spec.Details = map[string]any{
			"format":      info.Format,
			"file_offset": s.FileOffset,
			"flags":       s.Flags,
		}
		specs = append(specs, spec)
	}
	sort.SliceStable(specs, func(i, j int) bool { return *specs[i].Address < *specs[j].Address })
	return specs, nil
}

func parseELF(data []byte) (*Info, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	info := &Info{Format: ELF, Entrypoint: int64(f.Entry)}
	// Sections of a relocatable object are all linked at 0, so they are laid
	// out one after another at their alignment instead.
	relocatable := f.Type == elf.ET_REL
	var cursor uint64
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS || s.Size == 0 {
			continue
		}
		addr := s.Addr
		if relocatable {
			if a := s.Addralign; a > 1 {
				cursor = (cursor + a - 1) / a * a
			}
			addr = cursor
			cursor += s.Size
		}
		if addr > math.MaxInt64 || s.Size > math.MaxInt64-addr {
			return nil, fmt.Errorf("%w: section %s at 0x%x does not fit a signed 64-bit address space", ErrMalformed, s.Name, addr)
		}
		info.Sections = append(info.Sections, Section{
			Name:       s.Name,
			Address:    int64(addr),
			FileOffset: int64(s.Offset),
			FileSize:   int64(s.Size),
			Flags:      uint64(s.Flags),
		})
	}
	if syms, err := f.ImportedSymbols(); err == nil {
		for _, s := range syms {
			info.Imports = append(info.Imports, s.Name)
		}
	}
	return info, nil
}

func parsePE(data []byte) (*Info, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	info := &Info{Format: PE}
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		info.Base = int64(oh.ImageBase)
		info.Entrypoint = info.Base + int64(oh.AddressOfEntryPoint)
	case *pe.OptionalHeader64:
		// Leave room for a 32-bit RVA plus section size above the base.
		if oh.ImageBase > math.MaxInt64-2*math.MaxUint32 {
			return nil, fmt.Errorf("%w: image base 0x%x does not fit a signed 64-bit address space", ErrMalformed, oh.ImageBase)
		}
		info.Base = int64(oh.ImageBase)
		info.Entrypoint = info.Base + int64(oh.AddressOfEntryPoint)
	}

	for _, s := range f.Sections {
		size := int64(s.Size)
		if s.VirtualSize != 0 && int64(s.VirtualSize) < size {
			size = int64(s.VirtualSize)
		}
		info.Sections = append(info.Sections, Section{
			Name:       s.Name,
			Address:    info.Base + int64(s.VirtualAddress),
			FileOffset: int64(s.Offset),
			FileSize:   size,
			Flags:      uint64(s.Characteristics),
		})
	}
	if syms, err := f.ImportedSymbols(); err == nil {
		info.Imports = syms
	}
	return info, nil
}
