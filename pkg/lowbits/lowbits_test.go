package lowbits_test

import (
	"testing"

	"github.com/brickingsoft/arc/pkg/lowbits"
)

func TestMask(t *testing.T) {
	for align, want := range map[uintptr]uintptr{
		1:   0,
		2:   1,
		4:   3,
		8:   7,
		16:  15,
		128: 127,
	} {
		if got := lowbits.Mask(align); got != want {
			t.Errorf("Mask(%d) = %#x, want %#x", align, got, want)
		}
	}
}

func TestComposeDecompose(t *testing.T) {
	mask := lowbits.Mask(8)
	for _, addr := range []uintptr{0, 8, 0x1000, 0x7ffffff8, 0xdeadbee8} {
		for tag := uintptr(0); tag <= mask; tag++ {
			word := lowbits.Compose(addr, tag, mask)
			gotAddr, gotTag := lowbits.Decompose(word, mask)
			if gotAddr != addr || gotTag != tag {
				t.Fatalf("Decompose(Compose(%#x, %#x)) = (%#x, %#x)", addr, tag, gotAddr, gotTag)
			}
		}
	}
}

func TestComposeTruncatesTag(t *testing.T) {
	mask := lowbits.Mask(8)
	word := lowbits.Compose(0x1000, 0xff, mask)
	addr, tag := lowbits.Decompose(word, mask)
	if addr != 0x1000 {
		t.Errorf("addr = %#x, want %#x", addr, 0x1000)
	}
	if tag != 0xff&mask {
		t.Errorf("tag = %#x, want %#x", tag, 0xff&mask)
	}
}

func TestZeroMask(t *testing.T) {
	mask := lowbits.Mask(1)
	if mask != 0 {
		t.Fatalf("Mask(1) = %#x, want 0", mask)
	}
	word := lowbits.Compose(0x1001, 0x7, mask)
	if word != 0x1001 {
		t.Errorf("Compose with zero mask altered the address: %#x", word)
	}
	addr, tag := lowbits.Decompose(word, mask)
	if addr != 0x1001 || tag != 0 {
		t.Errorf("Decompose with zero mask = (%#x, %#x), want (%#x, 0)", addr, tag, 0x1001)
	}
}

func TestAligned(t *testing.T) {
	mask := lowbits.Mask(8)
	if !lowbits.Aligned(0x1000, mask) {
		t.Error("0x1000 should be aligned to 8")
	}
	if lowbits.Aligned(0x1004, mask) {
		t.Error("0x1004 should not be aligned to 8")
	}
	if !lowbits.Aligned(0x1004, lowbits.Mask(4)) {
		t.Error("0x1004 should be aligned to 4")
	}
	if !lowbits.Aligned(0x1001, 0) {
		t.Error("every address is aligned to mask 0")
	}
}
