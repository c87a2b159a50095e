package fnle

import (
	"fmt"
	"net/netip"
	"strings"
)

// Add parses net as CIDR notation ("203.0.113.0/24"), an inetnum range
// ("203.0.113.0-203.0.113.255"), or a bare host address, classifies it
// as IPv4 or IPv6, and inserts it. Single hosts go to the family's
// direct map; everything else becomes a ranged slot.
func (ix *Index[P]) Add(net string, payload P) error {
	r, isHost, isV4, err := parseNet(net)
	if err != nil {
		return err
	}
	f := ix.v6
	if isV4 {
		f = ix.v4
	}
	if isHost {
		f.addDirect(r.Start, payload, ix.Policy)
		return nil
	}
	return f.addRange(r, payload)
}

// parseNet accepts CIDR, "start-end" inetnum, or a bare address.
func parseNet(net string) (r Range, isHost bool, isV4 bool, err error) {
	net = strings.TrimSpace(net)

	if strings.Contains(net, "/") {
		prefix, perr := netip.ParsePrefix(net)
		if perr != nil {
			return Range{}, false, false, fmt.Errorf("fnle: invalid CIDR %q: %w", net, perr)
		}
		start, end := prefixRange(prefix)
		isV4 = prefix.Addr().Is4()
		if prefix.Bits() == prefix.Addr().BitLen() {
			return Range{Start: start}, true, isV4, nil
		}
		return Range{Start: start, End: end}, false, isV4, nil
	}

	if idx := strings.Index(net, "-"); idx > 0 {
		startStr := strings.TrimSpace(net[:idx])
		endStr := strings.TrimSpace(net[idx+1:])
		startAddr, serr := netip.ParseAddr(startStr)
		if serr != nil {
			return Range{}, false, false, fmt.Errorf("fnle: invalid range start %q: %w", startStr, serr)
		}
		endAddr, eerr := netip.ParseAddr(endStr)
		if eerr != nil {
			return Range{}, false, false, fmt.Errorf("fnle: invalid range end %q: %w", endStr, eerr)
		}
		if startAddr.Is4() != endAddr.Is4() {
			return Range{}, false, false, fmt.Errorf("fnle: mixed-family range %q", net)
		}
		start := addrToFNLE(startAddr)
		end := addrToFNLE(endAddr)
		if start == end {
			return Range{Start: start}, true, startAddr.Is4(), nil
		}
		return Range{Start: start, End: end}, false, startAddr.Is4(), nil
	}

	addr, aerr := netip.ParseAddr(net)
	if aerr != nil {
		return Range{}, false, false, fmt.Errorf("fnle: invalid address %q: %w", net, aerr)
	}
	a := addrToFNLE(addr)
	return Range{Start: a}, true, addr.Is4(), nil
}

func addrToFNLE(addr netip.Addr) Addr {
	if addr.Is4() {
		b := addr.As4()
		v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		return AddrFromV4(v)
	}
	b := addr.As16()
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(b[i])
	}
	return AddrFromV6(hi, lo)
}

func fnleToAddr(a Addr, isV4 bool) netip.Addr {
	if isV4 {
		v := uint32(a.Lo)
		return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	}
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(a.Hi >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		b[15-i] = byte(a.Lo >> (8 * i))
	}
	return netip.AddrFrom16(b)
}

// prefixRange computes the inclusive [start, end] addresses covered by
// a CIDR prefix.
func prefixRange(prefix netip.Prefix) (start, end Addr) {
	addr := prefix.Masked().Addr()
	start = addrToFNLE(addr)
	hostBits := addr.BitLen() - prefix.Bits()
	if hostBits == 0 {
		return start, start
	}
	if addr.Is4() {
		mask := uint32(1)<<uint(hostBits) - 1
		return start, AddrFromV4(uint32(start.Lo) | mask)
	}
	// IPv6: set the low hostBits bits across the 128-bit value.
	end = start
	bits := hostBits
	if bits >= 64 {
		end.Lo |= ^uint64(0)
		bits -= 64
		if bits > 0 {
			mask := uint64(1)<<uint(bits) - 1
			end.Hi |= mask
		}
	} else {
		mask := uint64(1)<<uint(bits) - 1
		end.Lo |= mask
	}
	return start, end
}

// ParseAddr classifies and converts an external query address. A
// non-IP input returns an error, which callers treat as "no result"
// before the range sweep runs.
func ParseAddr(s string) (addr Addr, isV4 bool, err error) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return Addr{}, false, fmt.Errorf("fnle: invalid address %q: %w", s, err)
	}
	return addrToFNLE(a), a.Is4(), nil
}
