package formats

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h2gb/engine/internal/workspace"
)

// buildPE assembles a minimal 32-bit PE image with a .text and a .data section.
func buildPE(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer

	dos := make([]byte, 0x40)
	copy(dos, "MZ")
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	write := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	write(pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     2,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader32{})),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE,
	})
	write(pe.OptionalHeader32{
		Magic:               0x10b,
		AddressOfEntryPoint: 0x1000,
		ImageBase:           0x400000,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		NumberOfRvaAndSizes: 16,
	})

	section := func(name string, va, size, offset, flags uint32) pe.SectionHeader32 {
		var sh pe.SectionHeader32
		copy(sh.Name[:], name)
		sh.VirtualAddress = va
		sh.VirtualSize = size
		sh.SizeOfRawData = 0x10
		sh.PointerToRawData = offset
		sh.Characteristics = flags
		return sh
	}
	write(section(".text", 0x1000, 0x10, 0x200, pe.IMAGE_SCN_CNT_CODE|pe.IMAGE_SCN_MEM_EXECUTE))
	write(section(".data", 0x2000, 0x08, 0x210, pe.IMAGE_SCN_CNT_INITIALIZED_DATA))

	for buf.Len() < 0x200 {
		buf.WriteByte(0)
	}
	buf.Write(bytes.Repeat([]byte{0x90}, 0x10))
	buf.Write([]byte("hello, world!!!\x00"))
	return buf.Bytes()
}

// buildELF assembles a minimal little-endian ELF64 file whose .text and .data
// sections are linked at textAddr and dataAddr.
func buildELF(t *testing.T, typ elf.Type, textAddr, dataAddr uint64) []byte {
	t.Helper()
	text := []byte{0x90, 0x90, 0x90, 0xc3}
	data := []byte("data")
	shstrtab := []byte("\x00.text\x00.data\x00.shstrtab\x00")

	const ehsize = 64
	textOff := uint64(ehsize)
	dataOff := textOff + uint64(len(text))
	strOff := dataOff + uint64(len(data))
	shoff := (strOff + uint64(len(shstrtab)) + 7) &^ 7

	var buf bytes.Buffer
	write := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	write(elf.Header64{
		Ident:     ident,
		Type:      uint16(typ),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    ehsize,
		Shentsize: 64,
		Shnum:     4,
		Shstrndx:  3,
	})
	buf.Write(text)
	buf.Write(data)
	buf.Write(shstrtab)
	for uint64(buf.Len()) < shoff {
		buf.WriteByte(0)
	}

	write(elf.Section64{})
	write(elf.Section64{Name: 1, Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
		Addr: textAddr, Off: textOff, Size: uint64(len(text)), Addralign: 4})
	write(elf.Section64{Name: 7, Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
		Addr: dataAddr, Off: dataOff, Size: uint64(len(data)), Addralign: 8})
	write(elf.Section64{Name: 13, Type: uint32(elf.SHT_STRTAB), Off: strOff, Size: uint64(len(shstrtab)), Addralign: 1})
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "elf", data: []byte("\x7fELF\x02\x01\x01"), want: ELF},
		{name: "pe", data: buildPE(t), want: PE},
		{name: "bare mz", data: append([]byte("MZ"), make([]byte, 0x40)...), want: Raw},
		{name: "empty", data: nil, want: Raw},
		{name: "text", data: []byte("just some bytes"), want: Raw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.data))
		})
	}
}

func TestSegments_Raw(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	specs, err := Segments(data, "")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, RawSegment, specs[0].Name)
	assert.Equal(t, int64(0), *specs[0].Address)
	assert.Equal(t, data, specs[0].Data)
}

func TestSegments_RawEmpty(t *testing.T) {
	specs, err := Segments(nil, Raw)
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestSegments_PE(t *testing.T) {
	data := buildPE(t)
	info, err := Parse(data, "")
	require.NoError(t, err)
	assert.Equal(t, PE, info.Format)
	assert.Equal(t, int64(0x400000), info.Base)
	assert.Equal(t, int64(0x401000), info.Entrypoint)

	specs, err := Segments(data, PE)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, ".text", specs[0].Name)
	assert.Equal(t, int64(0x401000), *specs[0].Address)
	assert.Equal(t, bytes.Repeat([]byte{0x90}, 0x10), specs[0].Data)
	assert.Equal(t, ".data", specs[1].Name)
	assert.Equal(t, []byte("hello, w"), specs[1].Data, "raw data is trimmed to the virtual size")
	assert.Equal(t, PE, specs[1].Details["format"])

	w := workspace.New()
	require.NoError(t, w.CreateSegments(specs))
}

func TestSegments_ELF(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	data, err := os.ReadFile(exe)
	require.NoError(t, err)
	if Detect(data) != ELF {
		t.Skip("test binary is not ELF on this platform")
	}

	specs, err := Segments(data, "")
	require.NoError(t, err)
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, s := range specs {
		names[s.Name] = true
	}
	assert.True(t, names[".text"], "expected a .text segment, got %v", names)

	w := workspace.New()
	require.NoError(t, w.CreateSegments(specs), "allocated sections must not overlap")
}

func TestSegments_Malformed(t *testing.T) {
	_, err := Segments([]byte("\x7fELF garbage"), "")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Parse([]byte{1}, "mach-o")
	require.Error(t, err)
}

func TestSegments_ELFRelocatable(t *testing.T) {
	data := buildELF(t, elf.ET_REL, 0, 0)
	specs, err := Segments(data, "")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, ".text", specs[0].Name)
	assert.Equal(t, int64(0), *specs[0].Address)
	assert.Equal(t, ".data", specs[1].Name)
	assert.Equal(t, int64(8), *specs[1].Address, "sections are laid out at their alignment")
	assert.Equal(t, []byte("data"), specs[1].Data)

	w := workspace.New()
	require.NoError(t, w.CreateSegments(specs))
}

func TestSegments_ELFExecutableKeepsAddresses(t *testing.T) {
	specs, err := Segments(buildELF(t, elf.ET_EXEC, 0x401000, 0x402000), ELF)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, int64(0x401000), *specs[0].Address)
	assert.Equal(t, int64(0x402000), *specs[1].Address)
}

func TestSegments_ELFHighHalf(t *testing.T) {
	_, err := Segments(buildELF(t, elf.ET_EXEC, 0xffffffff80000000, 0xffffffff80001000), ELF)
	require.ErrorIs(t, err, ErrMalformed)
}
