package mem

import "testing"

func TestSizePages(t *testing.T) {
	cases := []struct {
		size Size
		want uint64
	}{
		{0, 0},
		{1, 1},
		{Size(PageSize), 1},
		{Size(PageSize) + 1, 2},
		{2 * Size(PageSize), 2},
	}
	for _, c := range cases {
		if got := c.size.Pages(); got != c.want {
			t.Errorf("Size(%d).Pages() = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestPhysAddrPPNAndOffsetRoundTrip(t *testing.T) {
	addr := PhysAddr(3*uint64(PageSize) + 0x123)
	if got, want := addr.PPN(), PPN(3); got != want {
		t.Fatalf("PPN() = %d, want %d", got, want)
	}
	if got, want := addr.Offset(), uint64(0x123); got != want {
		t.Fatalf("Offset() = %#x, want %#x", got, want)
	}
}

func TestPPNAddrIsPageAligned(t *testing.T) {
	ppn := PPN(7)
	addr := ppn.Addr()
	if addr.Offset() != 0 {
		t.Fatalf("expected page-aligned address, got offset %#x", addr.Offset())
	}
	if got := addr.PPN(); got != ppn {
		t.Fatalf("round trip PPN = %d, want %d", got, ppn)
	}
}

func TestVirtAddrVPNAndOffsetRoundTrip(t *testing.T) {
	addr := VirtAddr(5*uint64(PageSize) + 0x456)
	if got, want := addr.VPN(), VPN(5); got != want {
		t.Fatalf("VPN() = %d, want %d", got, want)
	}
	if got, want := addr.Offset(), uint64(0x456); got != want {
		t.Fatalf("Offset() = %#x, want %#x", got, want)
	}
}

func TestVPNIndexSplitsIntoThreeNineBitFields(t *testing.T) {
	// vpn2=0x1FF, vpn1=0x0AA, vpn0=0x155
	vpn := VPN(0x1FF<<18 | 0x0AA<<9 | 0x155)
	if got := vpn.Index(0); got != 0x155 {
		t.Fatalf("Index(0) = %#x, want %#x", got, 0x155)
	}
	if got := vpn.Index(1); got != 0x0AA {
		t.Fatalf("Index(1) = %#x, want %#x", got, 0x0AA)
	}
	if got := vpn.Index(2); got != 0x1FF {
		t.Fatalf("Index(2) = %#x, want %#x", got, 0x1FF)
	}
}

func TestVPNAddrRoundTrip(t *testing.T) {
	vpn := VPN(12345)
	if got := vpn.Addr().VPN(); got != vpn {
		t.Fatalf("Addr().VPN() = %d, want %d", got, vpn)
	}
}
