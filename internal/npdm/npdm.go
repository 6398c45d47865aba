package npdm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"nxinfo/internal/title"
)

const (
	acidOffsetField   = 0x78
	acidMagicOffset   = 0x200
	acidFsAccessField = 0x220
	acidServiceField  = 0x228
	fsPermissionsOff  = 0x04

	// AllPermissions is the filesystem bitmask that grants every permission.
	AllPermissions uint64 = 0xFFFFFFFFFFFFFFFF
	// DebugPermission is the high bit of the filesystem bitmask.
	DebugPermission uint64 = 0x8000000000000000

	// FileSystemServicePrefix marks services that expose the filesystem.
	FileSystemServicePrefix = "fsp-"
)

// ErrMalformed is returned when a descriptor cannot be decoded.
var ErrMalformed = errors.New("malformed program descriptor")

// Service is one entry of the service access list.
type Service struct {
	Name   string
	Server bool
}

// Descriptor is the decoded access control part of a program descriptor.
type Descriptor struct {
	Services      []Service
	FSPermissions uint64
}

// Decode parses the ACID block of a program descriptor.
func Decode(r io.ReaderAt, size int64) (Descriptor, error) {
	var magic [4]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil || string(magic[:]) != "META" {
		return Descriptor{}, fmt.Errorf("%w: missing META header", ErrMalformed)
	}
	acidOff, acidSize, err := readPair(r, acidOffsetField)
	if err != nil {
		return Descriptor{}, err
	}
	if int64(acidOff)+int64(acidSize) > size || acidSize < acidServiceField+8 {
		return Descriptor{}, fmt.Errorf("%w: ACID block out of range", ErrMalformed)
	}
	acid := io.NewSectionReader(r, int64(acidOff), int64(acidSize))
	if _, err := acid.ReadAt(magic[:], acidMagicOffset); err != nil || string(magic[:]) != "ACID" {
		return Descriptor{}, fmt.Errorf("%w: missing ACID magic", ErrMalformed)
	}

	var d Descriptor
	fsOff, fsSize, err := readPair(acid, acidFsAccessField)
	if err != nil {
		return Descriptor{}, err
	}
	if fsSize >= fsPermissionsOff+8 {
		var raw [8]byte
		if _, err := acid.ReadAt(raw[:], int64(fsOff)+fsPermissionsOff); err != nil {
			return Descriptor{}, fmt.Errorf("%w: filesystem access: %v", ErrMalformed, err)
		}
		d.FSPermissions = binary.LittleEndian.Uint64(raw[:])
	}

	svcOff, svcSize, err := readPair(acid, acidServiceField)
	if err != nil {
		return Descriptor{}, err
	}
	if svcSize == 0 {
		return d, nil
	}
	services := make([]byte, svcSize)
	if _, err := acid.ReadAt(services, int64(svcOff)); err != nil {
		return Descriptor{}, fmt.Errorf("%w: service access: %v", ErrMalformed, err)
	}
	d.Services, err = parseServices(services)
	if err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func readPair(r io.ReaderAt, off int64) (uint32, uint32, error) {
	var raw [8]byte
	if _, err := r.ReadAt(raw[:], off); err != nil {
		return 0, 0, fmt.Errorf("%w: field at 0x%x: %v", ErrMalformed, off, err)
	}
	return binary.LittleEndian.Uint32(raw[:4]), binary.LittleEndian.Uint32(raw[4:]), nil
}

func parseServices(b []byte) ([]Service, error) {
	var out []Service
	for len(b) > 0 {
		ctrl := b[0]
		if ctrl == 0 {
			break
		}
		n := int(ctrl&0x7) + 1
		if len(b) < 1+n {
			return nil, fmt.Errorf("%w: service entry truncated", ErrMalformed)
		}
		out = append(out, Service{Name: string(b[1 : 1+n]), Server: ctrl&0x80 != 0})
		b = b[1+n:]
	}
	return out, nil
}

// UsesFileSystem reports whether the descriptor declares no services at all
// or any filesystem service.
func (d Descriptor) UsesFileSystem() bool {
	if len(d.Services) == 0 {
		return true
	}
	for _, s := range d.Services {
		if strings.HasPrefix(s.Name, FileSystemServicePrefix) {
			return true
		}
	}
	return false
}

// Classify maps a descriptor to a permission level. Descriptors without
// filesystem capability are always safe.
func Classify(d Descriptor) title.Permission {
	if !d.UsesFileSystem() {
		return title.PermissionSafe
	}
	switch {
	case d.FSPermissions == AllPermissions:
		return title.PermissionDangerous
	case d.FSPermissions&DebugPermission != 0:
		return title.PermissionUnsafe
	default:
		return title.PermissionSafe
	}
}
