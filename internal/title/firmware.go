package title

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Firmware maps a raw required system version to a firmware version string.
// Early firmware releases did not encode their version in the upper bits, so
// they are resolved from a fixed table.
func Firmware(v uint32) string {
	switch {
	case v == 0:
		return "0"
	case v <= 450:
		return "1.0.0"
	case v <= 65796:
		return "2.0.0"
	case v <= 131162:
		return "2.1.0"
	case v <= 196628:
		return "2.2.0"
	case v <= 262164:
		return "2.3.0"
	}
	return fmt.Sprintf("%d.%d.%d", (v>>26)&0x3F, (v>>20)&0x3F, (v>>16)&0xF)
}

// CompareFirmware orders two firmware strings. "0" sorts before every
// release. Malformed strings sort before well-formed ones.
func CompareFirmware(a, b string) int {
	return semver.Compare(firmwareSemver(a), firmwareSemver(b))
}

func firmwareSemver(fw string) string {
	fw = strings.TrimSpace(fw)
	if fw == "0" || fw == "" {
		return "v0.0.0"
	}
	v := "v" + strings.TrimPrefix(fw, "v")
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// masterKeyFirmware lists the firmware range that introduced each key
// generation.
var masterKeyFirmware = []string{
	"1.0.0-2.3.0",
	"3.0.0",
	"3.0.1-3.0.2",
	"4.0.0-4.1.0",
	"5.0.0-5.1.0",
	"6.0.0-6.1.0",
	"6.2.0",
	"7.0.0-8.0.1",
	"8.1.0-8.1.1",
	"9.0.0-9.0.1",
	"9.1.0-12.0.3",
	"12.1.0",
	"13.0.0-13.2.1",
	"14.0.0-14.1.2",
	"15.0.0-15.0.1",
	"16.0.0-16.1.0",
	"17.0.0-17.0.1",
	"18.0.0-18.1.0",
	"19.0.0-19.0.1",
	"20.0.0-20.5.0",
}

// MasterKeyLabel renders a key generation index with its firmware range.
func MasterKeyLabel(mk uint32) string {
	if int(mk) < len(masterKeyFirmware) {
		return fmt.Sprintf("%d (%s)", mk, masterKeyFirmware[mk])
	}
	return fmt.Sprintf("%d", mk)
}
