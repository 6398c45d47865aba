package builder

import (
	"bytes"
	"fmt"
	"io/fs"

	"nxinfo/internal/container"
	"nxinfo/internal/logging"
	"nxinfo/internal/npdm"
	"nxinfo/internal/title"
)

const descriptorName = "main.npdm"

// pairsWith reports whether content of kind ct is the primary content of a
// title of type typ. Signature, master key and permission are only taken
// from paired content.
func pairsWith(typ title.Type, ct container.ContentType) bool {
	switch {
	case (typ == title.TypeApplication || typ == title.TypePatch) && ct == container.ContentProgram:
		return true
	case typ == title.TypePatch && ct == container.ContentData:
		return true
	case typ == title.TypeAddOnContent && ct == container.ContentAocData:
		return true
	}
	return false
}

// masterKey derives the key generation index from the crypto type fields.
func masterKey(h container.ContentHeader) uint32 {
	if h.CryptoType != 2 {
		return 0
	}
	return uint32(max(int(h.CryptoType2)-1, 0))
}

func (s *session) primaryContent(c container.Content) {
	h := c.Header()
	paired := pairsWith(s.t.Type, h.ContentType)
	s.log.Debug("processing primary content",
		logging.String("content_type", h.ContentType.String()),
		logging.Bool("paired", paired),
		logging.Bool("rights_protected", h.HasRightsID()),
	)
	if paired {
		s.t.Signature = title.SignatureFrom(h.SignatureValid)
	}
	s.resolveName(h)
	if !paired {
		return
	}
	s.t.MasterKey = masterKey(h)
	if h.ContentType == container.ContentProgram {
		s.descriptor(c)
	}
}

// resolveName fills the name and latest version from the key store side
// tables: by rights ID for protected content, otherwise by title ID with a
// fallback to the application ID.
func (s *session) resolveName(h container.ContentHeader) {
	store := s.b.keys
	if h.HasRightsID() {
		rid := h.RightsIDString()
		if name, ok := store.NameByRightsID(rid); ok {
			s.t.TitleName = name
		}
		if v, ok := store.VersionByRightsID(rid); ok {
			s.t.SetLatestVersion(v)
		}
		return
	}

	if name, ok := store.NameByTitleID(s.t.TitleID); ok {
		s.t.TitleName = name
	} else if name, ok := store.NameByTitleID(s.t.TitleIDApplication()); ok {
		if s.t.Type == title.TypeAddOnContent {
			name += " [DLC]"
		}
		s.t.TitleName = name
	}
	if v, ok := store.VersionByTitleID(s.t.TitleID); ok {
		s.t.SetLatestVersion(v)
	}
}

// descriptor classifies the program descriptor of program content. On
// failure the permission stays unset.
func (s *session) descriptor(c container.Content) {
	fsys, err := c.OpenSection(container.SectionFirst)
	if err != nil {
		s.fail("program descriptor", err)
		return
	}
	raw, err := fs.ReadFile(fsys, descriptorName)
	if err != nil {
		s.fail("program descriptor", err)
		return
	}
	d, err := npdm.Decode(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		s.fail("program descriptor", err)
		return
	}
	s.t.Permission = npdm.Classify(d)
	s.log.Debug("program descriptor classified",
		logging.String("permission", s.t.Permission.String()),
		logging.Int("services", len(d.Services)),
		logging.String("fs_permissions", formatBitmask(d.FSPermissions)),
	)
}

func formatBitmask(v uint64) string {
	return fmt.Sprintf("0x%016x", v)
}
