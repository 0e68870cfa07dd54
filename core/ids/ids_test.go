package ids

import "testing"

func TestComposeRequestIDRoundTrip(t *testing.T) {
	for _, rid := range []uint16{0, 1, 0xFFFF, 0x1234} {
		for _, s := range []uint64{0, 1, CounterMask, 0x0000_DEAD_BEEF} {
			sid := Compose(s, rid)
			if got := RequestIDOf(sid); got != rid {
				t.Errorf("RequestIDOf(Compose(%d,%d)) = %d, want %d", s, rid, got, rid)
			}
		}
	}
}

func TestCounterNextWraps(t *testing.T) {
	c := Counter(CounterMask)
	if next := c.Next(); next != 0 {
		t.Errorf("Next() at max = %d, want 0", next)
	}
}

func TestCounterNextMonotonic(t *testing.T) {
	c := Counter(41)
	if next := c.Next(); next != 42 {
		t.Errorf("Next() = %d, want 42", next)
	}
}

func TestComposeLayout(t *testing.T) {
	sid := Compose(5, 7)
	want := uint64(5)<<16 | 7
	if sid != want {
		t.Errorf("Compose(5,7) = %#x, want %#x", sid, want)
	}
}

func TestCounterOfRoundTrip(t *testing.T) {
	sid := Compose(0xABCDEF, 0x1122)
	if got := CounterOf(sid); uint64(got) != 0xABCDEF {
		t.Errorf("CounterOf = %#x, want %#x", got, 0xABCDEF)
	}
}
