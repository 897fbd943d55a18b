package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

type Detector struct {
	registry *Registry
	tempDir  string
	lookPath func(string) (string, error)
	log      *zap.Logger
}

type DetectorOption func(*Detector)

// WithTempDir sets where upload copies are spooled for inspection.
func WithTempDir(dir string) DetectorOption {
	return func(d *Detector) { d.tempDir = dir }
}

// WithLookPath replaces the executable lookup used for requirement checks.
func WithLookPath(fn func(string) (string, error)) DetectorOption {
	return func(d *Detector) { d.lookPath = fn }
}

func WithLogger(l *zap.Logger) DetectorOption {
	return func(d *Detector) { d.log = l }
}

func NewDetector(registry *Registry, opts ...DetectorOption) *Detector {
	d := &Detector{
		registry: registry,
		lookPath: exec.LookPath,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) Registry() *Registry { return d.registry }

// SniffMedia decides which media type upload is. The bytes are copied to a
// temporary file that is removed before returning, and upload is put back at
// the offset it had on entry so the caller can read the same bytes again. A
// stream that cannot report its offset is refused before anything is read.
func (d *Detector) SniffMedia(ctx context.Context, upload io.ReadSeeker, filename string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start, err := upload.Seek(0, io.SeekCurrent)
	if err != nil {
		return Result{}, fmt.Errorf("upload is not seekable: %w", err)
	}

	tmp, err := os.CreateTemp(d.tempDir, "plume-sniff-*")
	if err != nil {
		return Result{}, fmt.Errorf("create sniff copy: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, copyErr := io.Copy(tmp, upload)
	closeErr := tmp.Close()

	if _, err := upload.Seek(start, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("rewind upload: %w", err)
	}

	if err := errors.Join(copyErr, closeErr); err != nil {
		return Result{}, fmt.Errorf("copy upload for sniffing: %w", err)
	}

	c := NewCandidate(tmp.Name(), filename, size)

	res, err := d.detect(c)
	if err != nil {
		d.log.Info("media detection failed", zap.String("filename", filename), zap.Error(err))
		return Result{}, err
	}

	if err := d.checkRequirements(res.Manager); err != nil {
		d.log.Error("media type not usable", zap.String("media_type", res.Type), zap.Error(err))
		return Result{}, err
	}

	d.log.Debug("media detected",
		zap.String("filename", filename),
		zap.String("media_type", res.Type),
		zap.Int("tier", res.Tier),
	)

	return res, nil
}

func (d *Detector) detect(c *Candidate) (Result, error) {
	notFound := &TypeNotFoundError{Filename: c.Filename, Extension: c.Extension}
	var tier1 string

	if m, sniff, ok := d.registry.TypeMatch(c.Extension); ok {
		if sniff == nil {
			return Result{Type: m.Type(), Manager: m, Tier: 1}, nil
		}

		tier1 = m.Type()
		notFound.Consulted = append(notFound.Consulted, tier1)

		v, err := sniff(c)
		switch v {
		case Accept:
			return Result{Type: m.Type(), Manager: m, Tier: 1}, nil
		case Reject:
			return Result{}, &ContentMismatchError{MediaType: m.Type(), Reason: rejectReason(err)}
		}
		if err != nil {
			notFound.Reasons = append(notFound.Reasons, fmt.Sprintf("%s: %v", m.Type(), err))
		}
	} else if m, ok := d.registry.LegacyMatch(c.Extension); ok {
		return Result{Type: m.Type(), Manager: m, Tier: 2}, nil
	}

	var (
		found  Result
		failed error
	)
	d.registry.each(func(m Manager, sniff Sniffer) bool {
		if m.Type() == tier1 {
			return true
		}

		notFound.Consulted = append(notFound.Consulted, m.Type())
		v, err := sniff(c)
		switch v {
		case Accept:
			found = Result{Type: m.Type(), Manager: m, Tier: 3}
			return false
		case Reject:
			failed = &ContentMismatchError{MediaType: m.Type(), Reason: rejectReason(err)}
			return false
		}
		if err != nil {
			notFound.Reasons = append(notFound.Reasons, fmt.Sprintf("%s: %v", m.Type(), err))
		}
		return true
	})

	switch {
	case failed != nil:
		return Result{}, failed
	case found.Manager != nil:
		return found, nil
	case c.err != nil:
		return Result{}, fmt.Errorf("inspect upload: %w", c.err)
	}

	return Result{}, notFound
}

func (d *Detector) checkRequirements(m Manager) error {
	var missing []string
	for _, bin := range m.Requirements() {
		if _, err := d.lookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}

	if len(missing) > 0 {
		return &MissingComponentsError{MediaType: m.Type(), Missing: missing}
	}
	return nil
}

func rejectReason(err error) error {
	if err == nil {
		return errors.New("rejected without a reason")
	}
	return err
}
