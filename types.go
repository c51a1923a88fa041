package ntt

import "time"

// FsType tags the kind of filesystem object an inode represents.
type FsType string

const (
	FsTypeFile      FsType = "f"
	FsTypeDirectory FsType = "d"
	FsTypeSymlink   FsType = "l"
	FsTypeBlock     FsType = "b"
	FsTypeChar      FsType = "c"
	FsTypePipe      FsType = "p"
	FsTypeSocket    FsType = "s"
)

// Status is the inode lifecycle state. See spec.md §3 for the full
// state diagram; transitions out of pending are made only by the plan
// executor (C6), and the recovery tool (C7) moves failed_retryable
// rows back to pending.
type Status string

const (
	StatusPending         Status = "pending"
	StatusSuccess         Status = "success"
	StatusFailedRetryable Status = "failed_retryable"
	StatusFailedPermanent Status = "failed_permanent"
)

// ErrorType classifies why an inode failed. Never set while Status is
// pending or success; always set for the two failed_* statuses.
type ErrorType string

const (
	ErrorTypeNone       ErrorType = ""
	ErrorTypePath       ErrorType = "path_error"
	ErrorTypeIO         ErrorType = "io_error"
	ErrorTypeHash       ErrorType = "hash_error"
	ErrorTypePermission ErrorType = "permission_error"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Health reflects the imager's rescue-percentage classification for a
// medium (spec.md §6, "Imager").
type Health string

const (
	HealthOK         Health = "ok"
	HealthIncomplete Health = "incomplete"
	HealthCorrupt    Health = "corrupt"
	HealthFailed     Health = "failed"
	HealthUnknown    Health = ""
)

// EmptyBlobHash is the pinned well-known content hash for the empty
// file. It is never computed at runtime — size-0 inodes are linked
// directly to the blob published under this hash once.
const EmptyBlobHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// MaxInodeErrors bounds the append-only inode.errors[] log (spec.md §9
// open question: cap at 32, oldest dropped first).
const MaxInodeErrors = 32

// Medium is one physical source artifact, imaged into one byte-exact
// image file. medium_hash is immutable once assigned.
type Medium struct {
	MediumHash string
	Label      string
	ImagePath  string
	EnumDone   *time.Time
	CopyDone   *time.Time
	Health     Health
	Problems   MediumProblems
	// Diagnostics holds imager-provided image metadata: content hash,
	// filesystem signature, block id. Opaque to the copy engine.
	Diagnostics map[string]any
}

// MediumProblems is the semi-structured record described in spec.md
// §4.2: a set of idempotent, once-only flags plus the queued
// diagnostic event log flushed by the diagnostic service.
type MediumProblems struct {
	BeyondEOFDetected *bool                `json:"beyond_eof_detected,omitempty"`
	HighErrorRate     *HighErrorRate       `json:"high_error_rate,omitempty"`
	DiagnosticEvents  []DiagnosticEvent    `json:"diagnostic_events,omitempty"`
}

// HighErrorRate is recorded once by the medium-level aggregator (C8)
// when observed error_count/processed_count exceeds 10% with at least
// 100 inodes processed.
type HighErrorRate struct {
	RatePercent     float64   `json:"rate_percent"`
	DetectedAtCount int64     `json:"detected_at_count"`
	DetectedAt      time.Time `json:"detected_at"`
}

// DiagnosticEvent is the structured record the diagnostic service
// queues at a retry checkpoint and the plan executor flushes to
// medium.problems after the batch commits (spec.md §4.2).
type DiagnosticEvent struct {
	InodeNumber uint64    `json:"inode_number"`
	RetryCount  int       `json:"retry_count"`
	ErrorType   ErrorType `json:"error_type"`
	Checks      []string  `json:"checks"`
	Action      string    `json:"action"` // "diagnostic_skip" | "continuing"
	At          time.Time `json:"at"`
}

// Inode is one row per (medium_hash, device, inode_number) discovered
// by enumeration. Hardlinked source files share one Inode row —
// enumeration emits each inode once regardless of nlink.
type Inode struct {
	MediumHash   string
	Device       uint64
	InodeNumber  uint64
	Size         int64
	Nlink        int
	Mtime        time.Time
	FsType       FsType
	BlobID       string // empty when unset
	MimeType     string // empty when unknown
	ProcessedAt  *time.Time
	ClaimedBy    string // empty when not claimed
	ClaimedAt    *time.Time
	Errors       []string
	Status       Status
	ErrorType    ErrorType
}

// AppendError appends to the bounded errors[] log, dropping the
// oldest entry once MaxInodeErrors is exceeded.
func (i *Inode) AppendError(msg string) {
	i.Errors = append(i.Errors, msg)
	if len(i.Errors) > MaxInodeErrors {
		i.Errors = i.Errors[len(i.Errors)-MaxInodeErrors:]
	}
}

// Path is one row per (medium_hash, path bytes), back-referencing its
// inode. Path bytes are never normalized or decoded.
type Path struct {
	MediumHash    string
	PathBytes     []byte
	Device        uint64
	InodeNumber   uint64
	MimeType      string
	ExcludeReason string // empty when not excluded
}

// Excluded reports whether this path was filtered out at load time by
// an ignore pattern (spec.md §4.9, "Ignore patterns").
func (p Path) Excluded() bool {
	return p.ExcludeReason != ""
}

// ExcludedClaim is the sentinel claimed_by value the copy engine
// writes (conceptually; the loader is responsible for this flag in
// practice) when every path of an inode is excluded, so the inode is
// skipped by the copy engine without contending for a real claim slot.
const ExcludedClaim = "EXCLUDED"

// Blob is one row per distinct content hash ever observed.
type Blob struct {
	BlobID         string
	NHardlinks     int64
	ExternalCopied bool
	LastChecked    *time.Time
}
