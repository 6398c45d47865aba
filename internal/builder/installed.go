package builder

import (
	"context"

	"nxinfo/internal/container"
	"nxinfo/internal/installed"
	"nxinfo/internal/logging"
	"nxinfo/internal/title"
)

// BuildInstalled builds the record of a title read from an installed-title
// database. Contents are dispatched by their header type rather than by
// name. Installed patches are indexed under the base title, so their ID is
// rewritten to the patch form at the end.
func (b *Builder) BuildInstalled(ctx context.Context, it *installed.Title) *title.Title {
	ctx = logging.WithFile(ctx, it.TitleID())
	s := b.newSession(ctx, title.DistributionFilesystem)
	s.t.TitleID = it.TitleID()
	s.t.Type = it.Type
	s.t.Filesize = it.Size()
	s.log.Debug("processing installed title", logging.Int("contents", len(it.Contents)))

	for _, c := range it.Contents {
		switch c.Type {
		case container.ContentProgram, container.ContentData, container.ContentAocData:
			s.t.Filename = c.Name
			s.log.Debug("found primary content", logging.String(logging.FieldEntry, c.Name))
			s.installedContent(c, s.primaryContent)
		case container.ContentMeta:
			s.installedContent(c, func(content container.Content) {
				s.metaRecords(content, false)
			})
		case container.ContentControl:
			s.log.Debug("found control content", logging.String(logging.FieldEntry, c.Name))
			s.installedContent(c, s.controlContent)
		}
	}

	if s.t.Type == title.TypePatch {
		s.t.TitleID = title.PatchTitleID(s.t.TitleID)
	}
	return b.finish(s)
}

func (s *session) installedContent(c installed.Content, decode func(container.Content)) {
	r, closer, err := c.Open()
	if err != nil {
		s.fail("open "+c.Name, err)
		return
	}
	defer closer.Close()
	// The title ID is already known, so missing keys never drop the title.
	_ = s.withContent(c.Name, r, decode)
}
