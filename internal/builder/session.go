package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"nxinfo/internal/cnmt"
	"nxinfo/internal/container"
	"nxinfo/internal/keys"
	"nxinfo/internal/logging"
	"nxinfo/internal/nacp"
	"nxinfo/internal/title"
)

// session accumulates one title. It is owned by a single build call.
type session struct {
	b   *Builder
	ctx context.Context
	log *slog.Logger
	t   *title.Title

	sel     cnmt.Selector
	primary string
	control string
}

func (b *Builder) newSession(ctx context.Context, dist title.Distribution) *session {
	return &session{
		b:   b,
		ctx: ctx,
		log: b.log(ctx),
		t:   title.New(dist),
	}
}

// Entry name suffixes recognized while scanning a partition.
const (
	suffixCnmtNCA        = ".cnmt.nca"
	suffixCnmtXML        = ".cnmt.xml"
	suffixCert           = ".cert"
	suffixTicket         = ".tik"
	suffixLegalinfoXML   = ".legalinfo.xml"
	suffixNacpXML        = ".nacp.xml"
	suffixPrograminfoXML = ".programinfo.xml"
	nameCardspecXML      = "cardspec.xml"
	nameAuthoringXML     = "authoringtoolinfo.xml"
)

// scan walks the entries of a partition once. Legacy sidecars are only
// recognized in digital packages.
func (s *session) scan(part *container.PartitionFS, digital bool) error {
	for _, e := range part.Entries() {
		name := e.Name
		switch {
		case digital && strings.HasSuffix(name, suffixCnmtXML):
			s.metaXML(name, part.OpenEntry(e))
			s.t.Structure.Add(title.CnmtXML)
		case strings.HasSuffix(name, suffixCnmtNCA):
			if err := s.metaContent(name, part.OpenEntry(e)); err != nil {
				return err
			}
			s.t.Structure.Add(title.CnmtNCA)
		case strings.HasSuffix(name, suffixCert):
			s.t.Structure.Add(title.Cert)
		case strings.HasSuffix(name, suffixTicket):
			s.ticket(name, part.OpenEntry(e))
			s.t.Structure.Add(title.Tik)
		case digital && strings.HasSuffix(name, suffixLegalinfoXML):
			s.t.Structure.Add(title.LegalinfoXML)
		case digital && strings.HasSuffix(name, suffixNacpXML):
			s.controlXML(name, part.OpenEntry(e))
			s.t.Structure.Add(title.NacpXML)
		case digital && strings.HasSuffix(name, suffixPrograminfoXML):
			s.t.Structure.Add(title.PrograminfoXML)
		case digital && name == nameCardspecXML:
			s.t.Structure.Add(title.CardspecXML)
		case digital && name == nameAuthoringXML:
			s.t.Structure.Add(title.AuthoringtoolinfoXML)
		}
	}
	return nil
}

// resolve opens the primary content, then the control content, chosen
// during the scan.
func (s *session) resolve(part *container.PartitionFS) error {
	if s.primary != "" {
		s.log.Debug("found primary content", logging.String(logging.FieldEntry, s.primary))
		if err := s.openEntry(part, s.primary, s.primaryContent); err != nil {
			return err
		}
	}
	if s.control != "" {
		s.log.Debug("found control content", logging.String(logging.FieldEntry, s.control))
		if err := s.openEntry(part, s.control, s.controlContent); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) openEntry(part *container.PartitionFS, name string, decode func(container.Content)) error {
	r, err := part.Open(name)
	if err != nil {
		s.fail("open "+name, err)
		return nil
	}
	return s.withContent(name, r, decode)
}

// withContent opens a content archive and hands it to decode.
func (s *session) withContent(name string, r *io.SectionReader, decode func(container.Content)) error {
	c, err := s.b.opener.OpenContent(s.ctx, name, r)
	if err != nil {
		return s.degrade("open "+name, err)
	}
	defer c.Close()
	decode(c)
	return nil
}

// metaContent decodes every record of a packaged metadata archive through
// the selection rule.
func (s *session) metaContent(name string, r *io.SectionReader) error {
	s.log.Debug("processing content metadata archive", logging.String(logging.FieldEntry, name))
	return s.withContent(name, r, func(c container.Content) {
		s.metaRecords(c, true)
	})
}

// metaRecords decodes the records of meta content. Without withContents
// only type, ID, version and firmware are taken.
func (s *session) metaRecords(c container.Content, withContents bool) {
	fsys, err := c.OpenSection(container.SectionFirst)
	if err != nil {
		s.fail("content metadata", err)
		return
	}
	records, err := cnmt.DecodeSection(fsys)
	for _, rec := range records {
		s.offer(rec, withContents)
	}
	if err != nil {
		s.fail("content metadata", err)
	}
}

// offer applies rec when it wins the selection rule and recomputes the
// primary and control candidates from it.
func (s *session) offer(rec cnmt.Record, withContents bool) {
	if !s.sel.Offer(rec) {
		s.log.Debug("content metadata record ignored",
			logging.TitleID(rec.TitleIDString()),
			logging.Int64("version", int64(rec.Version)),
		)
		return
	}
	s.applyRecord(rec)
	if !withContents {
		return
	}
	primary, hasPrimary := rec.Primary()
	control, hasControl := rec.Control()
	if hasPrimary && (hasControl || s.t.Type == title.TypeAddOnContent) {
		s.primary, s.control = primary, control
	}
}

func (s *session) applyRecord(rec cnmt.Record) {
	s.t.Type = rec.Type
	s.t.TitleID = rec.TitleIDString()
	s.t.Version = rec.Version
	s.t.Firmware = rec.Firmware()
	if mk, ok := rec.MasterKey(); ok {
		s.t.MasterKey = mk
	}
	s.log.Debug("content metadata record selected",
		logging.TitleID(s.t.TitleID),
		logging.String("type", rec.Type.String()),
		logging.Int64("version", int64(rec.Version)),
		logging.String("firmware", s.t.Firmware),
	)
}

// metaXML decodes a legacy metadata sidecar. Its record takes part in the
// same selection as binary records and, when it wins, names the primary and
// control content outright.
func (s *session) metaXML(name string, r io.Reader) {
	s.log.Debug("processing content metadata sidecar", logging.String(logging.FieldEntry, name))
	rec, err := cnmt.DecodeXML(r)
	if err != nil {
		s.fail(name, err)
		return
	}
	if !s.sel.Offer(rec) {
		return
	}
	s.applyRecord(rec)
	s.primary, _ = rec.Primary()
	s.control, _ = rec.Control()
}

// controlXML decodes a legacy control sidecar directly into the name and
// display version.
func (s *session) controlXML(name string, r io.Reader) {
	s.log.Debug("processing control sidecar", logging.String(logging.FieldEntry, name))
	props, err := nacp.DecodeXML(r)
	if err != nil {
		s.fail(name, err)
		return
	}
	s.t.TitleName = props.FirstXMLTitle()
	s.t.DisplayVersion = props.DisplayVersion
}

// ticket registers the title key of a ticket named after its rights ID.
func (s *session) ticket(name string, r io.ReaderAt) {
	rightsID, ok := keys.RightsIDFromFilename(name)
	if !ok {
		s.log.Debug("ticket name is not a rights id", logging.String(logging.FieldEntry, name))
		return
	}
	registered, err := s.b.keys.RegisterTicket(rightsID, r)
	if err != nil {
		s.log.Debug("ticket unreadable", logging.String(logging.FieldEntry, name), logging.Error(err))
		return
	}
	s.log.Debug("ticket processed", logging.String(logging.FieldEntry, name), logging.Bool("registered", registered))
}

// degrade handles an error raised while opening a content archive. Missing
// keys before any record exists drop the container; everything else is
// noted on the title.
func (s *session) degrade(step string, err error) error {
	if keys.IsMissingKey(err) && s.t.TitleID == "" {
		return fmt.Errorf("%s: %w", step, err)
	}
	s.fail(step, err)
	return nil
}

// fail records the first decode failure. Missing key messages are kept
// verbatim so they read the same wherever they surface.
func (s *session) fail(step string, err error) {
	msg := fmt.Sprintf("%s: %v", step, err)
	var mk *keys.MissingKeyError
	if errors.As(err, &mk) {
		msg = mk.Error()
	}
	s.t.Fail(msg)
	logging.WarnWithContext(s.log, "decode step failed", "decode_failed",
		logging.String("step", step),
		logging.Error(err),
		logging.String(logging.FieldImpact, "title kept with partial metadata"),
	)
}
