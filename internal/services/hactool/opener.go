package hactool

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"nxinfo/internal/container"
	"nxinfo/internal/fileutil"
	"nxinfo/internal/keys"
	"nxinfo/internal/logging"
	"nxinfo/internal/services"
)

const toolName = "hactool"

// maxSection is the highest section index an archive can carry.
const maxSection = 3

// SpoolPattern is the os.MkdirTemp pattern of per-archive work directories.
const SpoolPattern = "nca-*"

// TitleKeys resolves title keys by rights ID. *keys.Store satisfies it.
type TitleKeys interface {
	TitleKey(rightsID string) ([16]byte, bool)
}

// Option configures the opener.
type Option func(*Opener)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(o *Opener) {
		if exec != nil {
			o.exec = exec
		}
	}
}

// WithWorkDir sets the parent directory for spooled archives.
func WithWorkDir(dir string) Option {
	return func(o *Opener) { o.workDir = dir }
}

// WithTimeout bounds each hactool invocation.
func WithTimeout(d time.Duration) Option {
	return func(o *Opener) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Opener) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Opener implements container.ContentOpener on top of hactool.
type Opener struct {
	binary    string
	keyFile   string
	titleKeys TitleKeys
	workDir   string
	timeout   time.Duration
	exec      services.Executor
	logger    *slog.Logger
}

var _ container.ContentOpener = (*Opener)(nil)

// New constructs an opener. keyFile is the console key file passed to every
// invocation.
func New(binary, keyFile string, titleKeys TitleKeys, opts ...Option) (*Opener, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, toolName, "init", "binary required", nil)
	}
	if strings.TrimSpace(keyFile) == "" {
		return nil, services.Wrap(services.ErrConfiguration, toolName, "init", "key file required", nil)
	}
	o := &Opener{
		binary:    binary,
		keyFile:   keyFile,
		titleKeys: titleKeys,
		exec:      services.CommandExecutor{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, toolName)
	return o, nil
}

// OpenContent spools the archive and reads its header report. A header that
// cannot be decrypted is reported as *keys.MissingKeyError.
func (o *Opener) OpenContent(ctx context.Context, name string, r *io.SectionReader) (container.Content, error) {
	dir, err := os.MkdirTemp(o.workDir, SpoolPattern)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, toolName, "spool", name, err)
	}
	file, _, err := fileutil.Spool(dir, "content-*.nca", io.NewSectionReader(r, 0, r.Size()))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, services.Wrap(services.ErrTransient, toolName, "spool", name, err)
	}

	rep, err := o.inspect(ctx, name, file)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	c := &content{
		opener:  o,
		ctx:     ctx,
		name:    path.Base(name),
		dir:     dir,
		file:    file,
		header:  rep.header,
		missing: rep.missing,
	}
	if rep.header.HasRightsID() {
		rightsID := rep.header.RightsIDString()
		if key, ok := o.lookupTitleKey(rightsID); ok {
			c.titleKey = hex.EncodeToString(key[:])
		} else {
			c.missing = &keys.MissingKeyError{Kind: keys.KindTitle, Name: rightsID}
		}
	}
	o.logger.Debug("content opened",
		logging.String("content", c.name),
		logging.TitleID(fmt.Sprintf("%016X", rep.header.TitleID)),
		logging.String("content_type", rep.header.ContentType.String()),
		logging.Bool("signature_valid", rep.header.SignatureValid),
	)
	return c, nil
}

func (o *Opener) lookupTitleKey(rightsID string) ([16]byte, bool) {
	if o.titleKeys == nil {
		return [16]byte{}, false
	}
	return o.titleKeys.TitleKey(rightsID)
}

func (o *Opener) inspect(ctx context.Context, name, file string) (*report, error) {
	rep := &report{}
	err := o.run(ctx, []string{"-k", o.keyFile, "-t", "nca", file}, rep.observe)
	if err != nil {
		if rep.missing != nil {
			return nil, rep.missing
		}
		return nil, o.wrapRunError(ctx, "inspect", name, err)
	}
	if err := rep.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rep, nil
}

func (o *Opener) extract(ctx context.Context, c *content, index int, dest string) error {
	args := []string{"-k", o.keyFile, "-t", "nca"}
	if c.titleKey != "" {
		args = append(args, "--titlekey="+c.titleKey)
	}
	args = append(args, fmt.Sprintf("--section%ddir=%s", index, dest), c.file)

	rep := &report{}
	if err := o.run(ctx, args, rep.observe); err != nil {
		if rep.missing != nil {
			return rep.missing
		}
		return o.wrapRunError(ctx, "extract", c.name, err)
	}
	if rep.missing != nil {
		return rep.missing
	}
	if _, err := os.Stat(dest); err != nil {
		return fmt.Errorf("section %d of %s: %w", index, c.name, err)
	}
	return nil
}

func (o *Opener) run(ctx context.Context, args []string, onLine func(string)) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	o.logger.Debug("running hactool", logging.String("args", strings.Join(args, " ")))
	return o.exec.Run(ctx, o.binary, args, onLine)
}

func (o *Opener) wrapRunError(ctx context.Context, operation, name string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, toolName, operation, name, err)
	}
	return services.Wrap(services.ErrExternalTool, toolName, operation, name, err)
}

// sectionDir is where section index of an archive is extracted.
func sectionDir(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("section%d", index))
}
