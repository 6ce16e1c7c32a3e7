// Package driverversion parses and compares kernel-driver version strings
// of the form "MAJOR.MINOR.PATCH[-QUIRK]".
package driverversion

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a comparable driver version. Missing components default to
// zero; two versions compare equal only if their Quirk strings also match.
type Version struct {
	Major, Minor, Patch int
	Quirk               string
}

// Parse reads "MAJOR.MINOR.PATCH[-QUIRK]". Any of the three numeric
// components may be omitted from the right (defaulting to 0); a trailing
// "-QUIRK" suffix is kept verbatim.
func Parse(s string) (Version, error) {
	var v Version
	rest := s
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		v.Quirk = rest[i+1:]
		rest = rest[:i]
	}
	parts := strings.Split(rest, ".")
	if len(parts) > 3 {
		return Version{}, fmt.Errorf("driverversion: too many components in %q", s)
	}
	nums := [3]int{}
	for i, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("driverversion: invalid component %q in %q: %w", p, s, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// String round-trips Parse: "1.33.5-quirk".
func (v Version) String() string {
	base := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Quirk != "" {
		return base + "-" + v.Quirk
	}
	return base
}

// Compare returns -1, 0, or 1 comparing a to b by (major, minor, patch),
// and only treats them equal overall if Quirk also matches.
func Compare(a, b Version) int {
	for _, d := range [][2]int{{a.Major, b.Major}, {a.Minor, b.Minor}, {a.Patch, b.Patch}} {
		if d[0] != d[1] {
			if d[0] < d[1] {
				return -1
			}
			return 1
		}
	}
	if a.Quirk == b.Quirk {
		return 0
	}
	return strings.Compare(a.Quirk, b.Quirk)
}

// Equal reports whether a and b are identical, including Quirk.
func Equal(a, b Version) bool { return Compare(a, b) == 0 && a.Quirk == b.Quirk }

// FromRaw decodes the packed u32 the kernel-driver info ioctl returns:
// byte 0 = major, byte 1 = minor, byte 2 = patch, byte 3 unused.
func FromRaw(raw uint32) Version {
	return Version{
		Major: int(raw & 0xFF),
		Minor: int((raw >> 8) & 0xFF),
		Patch: int((raw >> 16) & 0xFF),
	}
}
