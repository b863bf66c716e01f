package loader

import "encoding/binary"

// elfSegment describes one PT_LOAD segment for buildELF.
type elfSegment struct {
	vaddr uint64
	flags uint32 // elf.PF_R | elf.PF_W | elf.PF_X
	data  []byte
	memsz uint64 // if 0, defaults to len(data)
}

const (
	ehdrSize = 64
	phdrSize = 56

	etExec   = 2
	emRISCV  = 243
	ptLoad   = 1
	evCurrent = 1
)

// buildELF assembles a minimal, well-formed little-endian ELF64 executable
// with one PT_LOAD program header per segment, entirely in memory --
// standing in for a real riscv64-unknown-elf toolchain, which build
// orchestration outside this package is responsible for. debug/elf, which
// vmm.FromELF uses to parse this, only inspects the fields this builder
// sets.
func buildELF(entry uint64, segs []elfSegment) []byte {
	dataOff := uint64(ehdrSize + len(segs)*phdrSize)

	var body []byte
	phdrs := make([][]byte, len(segs))
	for i, s := range segs {
		memsz := s.memsz
		if memsz == 0 {
			memsz = uint64(len(s.data))
		}
		off := dataOff + uint64(len(body))

		phdr := make([]byte, phdrSize)
		binary.LittleEndian.PutUint32(phdr[0:4], ptLoad)
		binary.LittleEndian.PutUint32(phdr[4:8], s.flags)
		binary.LittleEndian.PutUint64(phdr[8:16], off)
		binary.LittleEndian.PutUint64(phdr[16:24], s.vaddr)
		binary.LittleEndian.PutUint64(phdr[24:32], s.vaddr)
		binary.LittleEndian.PutUint64(phdr[32:40], uint64(len(s.data)))
		binary.LittleEndian.PutUint64(phdr[40:48], memsz)
		binary.LittleEndian.PutUint64(phdr[48:56], uint64(1))
		phdrs[i] = phdr

		body = append(body, s.data...)
	}

	ehdr := make([]byte, ehdrSize)
	copy(ehdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	ehdr[4] = 2 // ELFCLASS64
	ehdr[5] = 1 // ELFDATA2LSB
	ehdr[6] = evCurrent
	binary.LittleEndian.PutUint16(ehdr[16:18], etExec)
	binary.LittleEndian.PutUint16(ehdr[18:20], emRISCV)
	binary.LittleEndian.PutUint32(ehdr[20:24], evCurrent)
	binary.LittleEndian.PutUint64(ehdr[24:32], entry)
	binary.LittleEndian.PutUint64(ehdr[32:40], ehdrSize) // e_phoff
	binary.LittleEndian.PutUint16(ehdr[52:54], ehdrSize)
	binary.LittleEndian.PutUint16(ehdr[54:56], phdrSize)
	binary.LittleEndian.PutUint16(ehdr[56:58], uint16(len(segs)))

	out := make([]byte, 0, len(ehdr)+len(segs)*phdrSize+len(body))
	out = append(out, ehdr...)
	for _, p := range phdrs {
		out = append(out, p...)
	}
	out = append(out, body...)
	return out
}

// fakeAppTable packs images into an appTable whose offsets are relative to
// the concatenation of the images themselves, the same shape readAppTable
// builds from the real linker symbol -- letting tests drive AppCount/
// GetAppData/LoadAll without ever touching numAppTableAddr's assembly,
// which only resolves under the real linker script.
func fakeAppTable(images [][]byte) appTable {
	offsets := make([]uint64, len(images)+1)
	var image []byte
	for i, img := range images {
		offsets[i] = uint64(len(image))
		image = append(image, img...)
	}
	offsets[len(images)] = uint64(len(image))
	return appTable{image: image, offsets: offsets}
}
