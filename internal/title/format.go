package title

import (
	"strconv"

	"github.com/dustin/go-humanize"
)

// VersionString renders the installed version.
func (t *Title) VersionString() string {
	if t.Type == TypeUnknown && t.Version == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(t.Version), 10)
}

// LatestVersionString renders the catalog version, or "" when unknown.
func (t *Title) LatestVersionString() string {
	if t.LatestVersion == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*t.LatestVersion), 10)
}

// MasterKeyString renders the key generation with its firmware range.
func (t *Title) MasterKeyString() string {
	if t.Distribution == DistributionHomebrew {
		return ""
	}
	return MasterKeyLabel(t.MasterKey)
}

// FilesizeString renders the container size in IEC units.
func (t *Title) FilesizeString() string {
	if t.Filesize <= 0 {
		return ""
	}
	return humanize.IBytes(uint64(t.Filesize))
}

func (t *Title) TypeString() string { return t.Type.Label() }
func (t *Title) StructureString() string { return t.Structure.String() }
func (t *Title) SignatureString() string { return t.Signature.String() }
func (t *Title) PermissionString() string { return t.Permission.String() }
func (t *Title) DistributionString() string { return t.Distribution.String() }

// Outdated reports whether a newer version than the installed one is known.
func (t *Title) Outdated() bool {
	return t.LatestVersion != nil && *t.LatestVersion > t.Version
}
