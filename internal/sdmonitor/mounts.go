package sdmonitor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultMountTable is the kernel mount table read to resolve mount points.
const DefaultMountTable = "/proc/mounts"

// Mount is one mounted filesystem.
type Mount struct {
	Device string
	Path   string
	FSType string
}

// ParseMounts reads a mount table in fstab format.
func ParseMounts(r io.Reader) ([]Mount, error) {
	var mounts []Mount
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		mounts = append(mounts, Mount{
			Device: unescapeMountField(fields[0]),
			Path:   unescapeMountField(fields[1]),
			FSType: fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	return mounts, nil
}

// ReadMounts parses the mount table at path.
func ReadMounts(path string) ([]Mount, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mount table: %w", err)
	}
	defer f.Close()
	return ParseMounts(f)
}

// FindMount returns the first mount of device.
func FindMount(mounts []Mount, device string) (Mount, bool) {
	for _, m := range mounts {
		if m.Device == device {
			return m, true
		}
	}
	return Mount{}, false
}

// unescapeMountField decodes the octal escapes (\040 for space) the kernel
// uses for whitespace in mount table fields.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
