package vba

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/guinardelli/sheet-guardian-sub000/internal/common"
)

// Severity tags a pipeline log entry. These are the pipeline's observability
// contract with its caller, independent of the server logger's levels.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogEntry is one item of the ordered log stream a caller may render.
type LogEntry struct {
	Time     time.Time
	Message  string
	Severity Severity
}

// State enumerates the pipeline's processing states.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateExtracting
	StateScanning
	StateReassembling
	StateDone
	StateFailed
)

// ProcessingResult reports the outcome of one workbook submission. Every
// outcome is representable here; the pipeline never lets a panic or error
// escape to the caller.
type ProcessingResult struct {
	Success           bool
	Artifact          []byte
	OriginalName      string
	NewName           string
	VBAProjectPresent bool
	PatternsModified  int
	OriginalSize      int
	ModifiedSize      int
	// ShouldCountUsage is true iff processing succeeded and at least one
	// marker value was actually modified. Technical success alone is not a
	// billable event.
	ShouldCountUsage bool
	ErrorCode        string
	Err              error
}

// zipMagic is the ZIP local file header signature all workbook packages
// start with.
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// allowedExtensions are the macro-enabled workbook formats the pipeline
// accepts, compared case-insensitively.
var allowedExtensions = []string{".xlsm", ".xlsb"}

// Pipeline validates a workbook, neutralizes protection markers in its
// macro project and reassembles the package. Construct with NewPipeline;
// the zero value is not usable.
type Pipeline struct {
	patterns         []PatternSpec
	compressionLevel int
	logSink          func(LogEntry)
	progressSink     func(int)
	now              func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogSink sets the callback receiving log entries. Calls are
// fire-and-forget; a nil sink is valid.
func WithLogSink(sink func(LogEntry)) Option {
	return func(p *Pipeline) { p.logSink = sink }
}

// WithProgressSink sets the callback receiving progress values (0–100,
// monotonically non-decreasing within one submission).
func WithProgressSink(sink func(int)) Option {
	return func(p *Pipeline) { p.progressSink = sink }
}

// WithCompressionLevel sets the Deflate level used when reassembling.
func WithCompressionLevel(level int) Option {
	return func(p *Pipeline) { p.compressionLevel = level }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline constructs a pipeline using the known protection patterns.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		patterns:         ProtectionPatterns,
		compressionLevel: DefaultCompressionLevel,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run carries the per-submission progress floor so emissions stay monotone
// even if states report out-of-order values.
type run struct {
	p        *Pipeline
	progress int
}

// emitLog delivers a log entry to the sink. Sink panics are swallowed: log
// emission must never abort or block processing.
func (r *run) emitLog(severity Severity, format string, args ...any) {
	if r.p.logSink == nil {
		return
	}
	defer func() { _ = recover() }()
	r.p.logSink(LogEntry{
		Time:     r.p.now(),
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
	})
}

// emitProgress delivers a progress value, clamped to be non-decreasing.
func (r *run) emitProgress(value int) {
	if value < r.progress {
		value = r.progress
	}
	if value > 100 {
		value = 100
	}
	r.progress = value
	if r.p.progressSink == nil {
		return
	}
	defer func() { _ = recover() }()
	r.p.progressSink(value)
}

func (r *run) fail(res *ProcessingResult, err error) *ProcessingResult {
	res.Success = false
	res.Err = err
	res.ErrorCode = common.ErrorCode(err)
	r.emitLog(SeverityError, "processing failed: %v", err)
	return res
}

// Process runs one workbook submission through the state machine. It always
// returns a ProcessingResult and never panics.
func (p *Pipeline) Process(filename string, payload []byte) (res *ProcessingResult) {
	r := &run{p: p}
	res = &ProcessingResult{
		OriginalName: filename,
		OriginalSize: len(payload),
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = r.fail(res, fmt.Errorf("%w: %v", common.ErrorInternal, rec))
		}
	}()

	// Validating.
	r.emitProgress(5)
	r.emitLog(SeverityInfo, "validating %s (%d bytes)", filename, len(payload))
	if err := validate(filename, payload); err != nil {
		return r.fail(res, err)
	}
	r.emitProgress(10)

	// Extracting.
	archive, err := OpenArchive(payload)
	if err != nil {
		return r.fail(res, err)
	}
	r.emitLog(SeverityInfo, "archive opened, %d entries", len(archive.File))
	project, present, err := ExtractEntry(archive, ProjectEntryPath)
	if err != nil {
		return r.fail(res, err)
	}
	res.VBAProjectPresent = present
	r.emitProgress(35)

	// Scanning. Branches on entry presence: a workbook without a macro
	// project is still processed successfully, with nothing to rewrite.
	var rewritten []byte
	if present {
		r.emitLog(SeverityInfo, "scanning macro project (%d bytes)", len(project))
		res.PatternsModified = ScanAndRewrite(project, p.patterns)
		if res.PatternsModified > 0 {
			rewritten = project
			r.emitLog(SeveritySuccess, "neutralized %d protection marker(s)", res.PatternsModified)
		} else {
			r.emitLog(SeverityWarning, "no protection markers found")
		}
	} else {
		r.emitLog(SeverityWarning, "workbook has no macro project")
	}
	r.emitProgress(60)

	// Reassembling.
	artifact, err := RebuildArchive(archive, ProjectEntryPath, rewritten, p.compressionLevel)
	if err != nil {
		return r.fail(res, err)
	}
	r.emitProgress(90)

	res.Success = true
	res.Artifact = artifact
	res.ModifiedSize = len(artifact)
	res.NewName = outputName(filename, p.now())
	res.ShouldCountUsage = res.PatternsModified > 0
	r.emitLog(SeveritySuccess, "done: %s", res.NewName)
	r.emitProgress(100)
	return res
}

// validate applies the submission guards: non-empty payload, accepted
// extension, ZIP magic bytes.
func validate(filename string, payload []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	allowed := false
	for _, e := range allowedExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s", common.ErrInvalidExtension, filename)
	}
	if len(payload) == 0 {
		return common.ErrEmptyFile
	}
	if !bytes.HasPrefix(payload, zipMagic) {
		return fmt.Errorf("%w: missing package signature", common.ErrCorruptedArchive)
	}
	return nil
}

// outputName derives the artifact name: original base, a sortable compact
// timestamp suffix, original extension.
func outputName(filename string, now time.Time) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	return fmt.Sprintf("%s_%s%s", base, now.Format("20060102150405"), ext)
}
