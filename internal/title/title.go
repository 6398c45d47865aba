package title

import "strings"

// Type identifies the content meta type of a title. Values match the meta type
// byte stored in packaged content metadata.
type Type uint8

const (
	TypeUnknown              Type = 0x00
	TypeSystemProgram        Type = 0x01
	TypeSystemData           Type = 0x02
	TypeSystemUpdate         Type = 0x03
	TypeBootImagePackage     Type = 0x04
	TypeBootImagePackageSafe Type = 0x05
	TypeApplication          Type = 0x80
	TypePatch                Type = 0x81
	TypeAddOnContent         Type = 0x82
	TypeDelta                Type = 0x83
)

var typeNames = map[Type]string{
	TypeSystemProgram:        "SystemProgram",
	TypeSystemData:           "SystemData",
	TypeSystemUpdate:         "SystemUpdate",
	TypeBootImagePackage:     "BootImagePackage",
	TypeBootImagePackageSafe: "BootImagePackageSafe",
	TypeApplication:          "Application",
	TypePatch:                "Patch",
	TypeAddOnContent:         "AddOnContent",
	TypeDelta:                "Delta",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseType maps a meta type name as written in legacy XML sidecars. Case
// and surrounding space are ignored.
func ParseType(name string) (Type, bool) {
	name = strings.TrimSpace(name)
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, true
		}
	}
	return TypeUnknown, false
}

// Label is the short human label shown in listings and exports.
func (t Type) Label() string {
	switch t {
	case TypeApplication:
		return "Base"
	case TypePatch:
		return "Update"
	case TypeAddOnContent:
		return "DLC"
	case TypeUnknown:
		return ""
	default:
		return t.String()
	}
}

// Distribution records which container kind a title was read from.
type Distribution uint8

const (
	DistributionUnknown Distribution = iota
	DistributionCartridge
	DistributionDigital
	DistributionHomebrew
	DistributionFilesystem
)

func (d Distribution) String() string {
	switch d {
	case DistributionCartridge:
		return "Cartridge"
	case DistributionDigital:
		return "Digital"
	case DistributionHomebrew:
		return "Homebrew"
	case DistributionFilesystem:
		return "Filesystem"
	default:
		return "Invalid"
	}
}

// Signature is the tri-state fixed-key signature check result for the primary
// content of a title.
type Signature uint8

const (
	SignatureUnknown Signature = iota
	SignatureValid
	SignatureInvalid
)

// SignatureFrom converts a verification result into a Signature.
func SignatureFrom(valid bool) Signature {
	if valid {
		return SignatureValid
	}
	return SignatureInvalid
}

func (s Signature) String() string {
	switch s {
	case SignatureValid:
		return "Passed"
	case SignatureInvalid:
		return "Failed"
	default:
		return ""
	}
}

// Permission classifies the filesystem capability declared by a program
// descriptor. PermissionUnset means no descriptor was decoded.
type Permission uint8

const (
	PermissionUnset Permission = iota
	PermissionSafe
	PermissionUnsafe
	PermissionDangerous
)

func (p Permission) String() string {
	switch p {
	case PermissionSafe:
		return "Safe"
	case PermissionUnsafe:
		return "Unsafe"
	case PermissionDangerous:
		return "Dangerous"
	default:
		return ""
	}
}

// Title is the metadata record produced for one container or installed title.
type Title struct {
	TitleID        string       `json:"title_id"`
	Type           Type         `json:"type"`
	Version        uint32       `json:"version"`
	LatestVersion  *uint32      `json:"latest_version,omitempty"`
	Firmware       string       `json:"firmware"`
	MasterKey      uint32       `json:"masterkey"`
	TitleName      string       `json:"title_name,omitempty"`
	DisplayVersion string       `json:"display_version,omitempty"`
	Distribution   Distribution `json:"distribution"`
	Structure      Structure    `json:"structure"`
	Signature      Signature    `json:"signature"`
	Permission     Permission   `json:"permission"`
	Filename       string       `json:"filename"`
	Filesize       int64        `json:"filesize"`
	Error          string       `json:"error,omitempty"`
}

// New returns an empty title for the given distribution.
func New(dist Distribution) *Title {
	return &Title{Distribution: dist, Firmware: "0"}
}

// TitleIDApplication derives the application ID shared by a base title, its
// patches and its add-on content.
func (t *Title) TitleIDApplication() string {
	return ApplicationTitleID(t.TitleID)
}

// RaiseVersion sets Version to v when v is strictly greater and reports
// whether it did.
func (t *Title) RaiseVersion(v uint32) bool {
	if v > t.Version {
		t.Version = v
		return true
	}
	return false
}

// ReconcileID is the key under which the best-known version of this title is
// tracked.
func (t *Title) ReconcileID() string {
	if t.Type == TypeAddOnContent {
		return t.TitleID
	}
	return t.TitleIDApplication()
}

// SetLatestVersion records the newest version known from outside the
// container itself.
func (t *Title) SetLatestVersion(v uint32) {
	t.LatestVersion = &v
}

// Fail records a non-fatal decode note. The first note wins so that the
// earliest failure stays visible.
func (t *Title) Fail(msg string) {
	if t.Error == "" {
		t.Error = msg
	}
}

// Clone returns a copy that does not share the LatestVersion pointer.
func (t *Title) Clone() *Title {
	c := *t
	if t.LatestVersion != nil {
		v := *t.LatestVersion
		c.LatestVersion = &v
	}
	return &c
}
