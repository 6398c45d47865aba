package builder

import (
	"errors"
	"io"
	"io/fs"

	"nxinfo/internal/container"
	"nxinfo/internal/logging"
	"nxinfo/internal/nacp"
	"nxinfo/internal/title"
)

const controlPropertiesName = "control.nacp"

// controlContent takes the title ID from the control header and the name
// and display version from its property block. Content of any other kind
// is ignored.
func (s *session) controlContent(c container.Content) {
	h := c.Header()
	if h.ContentType != container.ContentControl {
		s.log.Debug("control entry is not control content", logging.String("content_type", h.ContentType.String()))
		return
	}
	s.t.TitleID = title.FormatTitleID(h.TitleID)
	if s.t.Type == title.TypePatch {
		s.t.TitleID = title.PatchTitleID(s.t.TitleID)
	}

	fsys, err := c.OpenSection(container.SectionFirst)
	if err != nil {
		s.fail("control properties", err)
		return
	}
	f, err := fsys.Open(controlPropertiesName)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debug("control content has no property block")
		return
	}
	if err != nil {
		s.fail("control properties", err)
		return
	}
	defer f.Close()
	s.controlProperties(f)
}

// controlProperties decodes a binary property block. The name is only
// replaced by a non-empty localized title.
func (s *session) controlProperties(r io.Reader) {
	props, err := nacp.Decode(r)
	if err != nil {
		s.fail("control properties", err)
		return
	}
	if name := props.Title(); name != "" {
		s.t.TitleName = name
	}
	s.t.DisplayVersion = props.DisplayVersion
	s.log.Debug("control properties decoded",
		logging.String("title_name", s.t.TitleName),
		logging.String("display_version", s.t.DisplayVersion),
	)
}
