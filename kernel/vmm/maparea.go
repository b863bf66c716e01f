package vmm

import (
	"chronos/kernel"
	"chronos/kernel/mem"
	"chronos/kernel/pmm"
	"unsafe"
)

// MapType selects how a MapArea's virtual pages relate to physical frames.
type MapType int

const (
	// Identical maps VPN n to PPN n, used for the kernel's self-map of its
	// own image and the rest of physical RAM.
	Identical MapType = iota
	// Framed maps each VPN to an independently allocated physical frame
	// the area owns for its lifetime.
	Framed
	// Direct maps a single VPN to a caller-supplied PPN the area does not
	// own (the trampoline code page, linked once at boot and shared
	// read-execute by every MemorySet).
	Direct
)

// MapArea is a contiguous VPN range [StartVPN, EndVPN) mapped with a single
// map type and permission bitmask.
type MapArea struct {
	StartVPN, EndVPN mem.VPN
	mapType          MapType
	perms            PTEFlag

	// frames holds the FrameTracker owning each VPN's backing frame for a
	// Framed area; empty for Identical/Direct areas, which never own data
	// frames.
	frames map[mem.VPN]*pmm.FrameTracker

	// directPPN is the externally owned target frame for a Direct area.
	directPPN mem.PPN
}

// NewIdenticalArea describes a VPN range identity-mapped to the PPN of equal
// numeric value.
func NewIdenticalArea(start, end mem.VPN, perms PTEFlag) *MapArea {
	return &MapArea{StartVPN: start, EndVPN: end, mapType: Identical, perms: perms}
}

// NewFramedArea describes a VPN range backed by independently allocated
// frames.
func NewFramedArea(start, end mem.VPN, perms PTEFlag) *MapArea {
	return &MapArea{
		StartVPN: start, EndVPN: end, mapType: Framed, perms: perms,
		frames: make(map[mem.VPN]*pmm.FrameTracker),
	}
}

// NewDirectArea describes a single VPN mapped to an externally owned PPN,
// used for the trampoline page: the area never allocates or releases
// directPPN, it only installs and removes the PTE.
func NewDirectArea(vpn mem.VPN, ppn mem.PPN, perms PTEFlag) *MapArea {
	return &MapArea{StartVPN: vpn, EndVPN: vpn + 1, mapType: Direct, perms: perms, directPPN: ppn}
}

// Contains reports whether vpn falls within this area's range.
func (a *MapArea) Contains(vpn mem.VPN) bool { return vpn >= a.StartVPN && vpn < a.EndVPN }

// FramePPN returns the physical frame a Framed area owns for vpn. Used by
// FromELF to locate a freshly pushed TrapContext page's physical frame,
// which it hands back so the loader can write the initial TrapContext into
// it directly (the kernel's identity map makes any physical address a valid
// pointer right now).
func (a *MapArea) FramePPN(vpn mem.VPN) (mem.PPN, bool) {
	frame, ok := a.frames[vpn]
	if !ok {
		return 0, false
	}
	return frame.PPN(), true
}

// Overlaps reports whether a and other share any VPN.
func (a *MapArea) Overlaps(other *MapArea) bool {
	return a.StartVPN < other.EndVPN && other.StartVPN < a.EndVPN
}

// MapInto installs every VPN of the area into pt. For a Framed area this
// allocates one zero-filled FrameTracker per page; for an Identical area it
// maps each VPN straight onto the PPN of equal numeric value.
func (a *MapArea) MapInto(pt *PageTable) *kernel.Error {
	for vpn := a.StartVPN; vpn < a.EndVPN; vpn++ {
		var ppn mem.PPN
		switch a.mapType {
		case Identical:
			ppn = mem.PPN(vpn)
		case Framed:
			frame, err := frameAllocFn()
			if err != nil {
				return err
			}
			a.frames[vpn] = frame
			ppn = frame.PPN()
		case Direct:
			ppn = a.directPPN
		}
		if err := pt.Map(vpn, ppn, a.perms); err != nil {
			return err
		}
	}
	return nil
}

// UnmapFrom removes every VPN of the area from pt and releases any data
// frames the area owns.
func (a *MapArea) UnmapFrom(pt *PageTable) *kernel.Error {
	for vpn := a.StartVPN; vpn < a.EndVPN; vpn++ {
		if err := pt.Unmap(vpn); err != nil {
			return err
		}
		if frame, ok := a.frames[vpn]; ok {
			frame.Release()
			delete(a.frames, vpn)
		}
	}
	return nil
}

// CopyData copies data into the area's already-mapped pages starting at
// StartVPN, one page at a time, and stops at the area's extent even if data
// is longer; pages beyond len(data) stay zero-filled from allocation. The
// area must be Framed (an Identical area has no private frame to write
// through).
func (a *MapArea) CopyData(data []byte) *kernel.Error {
	if limit := int(a.EndVPN-a.StartVPN) * int(mem.PageSize); len(data) > limit {
		data = data[:limit]
	}
	return a.CopyAt(a.StartVPN.Addr(), data)
}

// CopyAt copies data into this area's already-mapped frames starting at the
// absolute virtual address addr, which may fall anywhere within the area
// (not just at a page boundary), crossing page boundaries as needed. This
// is what lets two ELF segments that share one 4 KiB page each write their
// own bytes at their own intra-page offset without clobbering the other's.
// The area must be Framed.
func (a *MapArea) CopyAt(addr mem.VirtAddr, data []byte) *kernel.Error {
	if a.mapType != Framed {
		return &kernel.Error{Module: "vmm", Message: "cannot copy data into a non-framed area"}
	}

	vpn := addr.VPN()
	offset := int(addr.Offset())
	written := 0
	pageLen := int(mem.PageSize)

	for written < len(data) {
		frame, ok := a.frames[vpn]
		if !ok {
			return ErrNotMapped
		}

		n := pageLen - offset
		if rem := len(data) - written; n > rem {
			n = rem
		}
		dst := frame.Addr() + mem.PhysAddr(offset)
		src := mem.PhysAddr(uintptr(unsafe.Pointer(&data[written])))
		kernel.Memcopy(src, dst, mem.Size(n))

		written += n
		offset = 0
		vpn++
	}
	return nil
}
