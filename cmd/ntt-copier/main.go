// Command ntt-copier is the worker loop (spec.md §2): it repeatedly
// claims a batch of inodes for one medium, ensures the medium is
// mounted, runs each claimed inode through the analyzer (C5) and plan
// executor (C6), commits the batch in one database transaction, and
// flushes any queued diagnostic events and medium-level aggregates in
// separate transactions afterward.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vm-wylbur/ntt-sub000"
	"github.com/vm-wylbur/ntt-sub000/analyzer"
	"github.com/vm-wylbur/ntt-sub000/blobstore"
	"github.com/vm-wylbur/ntt-sub000/cache"
	"github.com/vm-wylbur/ntt-sub000/db"
	"github.com/vm-wylbur/ntt-sub000/diagnostic"
	"github.com/vm-wylbur/ntt-sub000/executor"
	"github.com/vm-wylbur/ntt-sub000/mount"
)

func main() {
	medium := flag.String("medium", "", "medium_hash to process (required)")
	once := flag.Bool("once", false, "claim and process a single batch, then exit")
	batchSize := flag.Int("batch-size", 0, "inodes per claim round (default: NTT_BATCH_SIZE or 100)")
	mountHelperBin := flag.String("mount-helper", "/usr/local/bin/mount-helper", "path to the privileged mount helper binary")
	lockDir := flag.String("lock-dir", "/var/lock/ntt", "directory holding per-medium mount lock files")
	kernelLog := flag.String("kernel-log", "/var/log/kern.log", "kernel log scanned for beyond_eof/fat_error/io_error signatures")
	flag.Parse()

	if *medium == "" {
		fmt.Fprintln(os.Stderr, "ntt-copier: -medium is required")
		os.Exit(1)
	}

	ntt.ConfigureLogging()
	log := slog.With("worker", "ntt-copier", "medium", *medium)

	cfg, err := ntt.LoadConfig()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}
	if *batchSize > 0 {
		cfg.BatchSize = *batchSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("connect", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureMediumPartition(ctx, pool, *medium); err != nil {
		log.Error("ensure partition", "error", err)
		os.Exit(1)
	}

	var blobCache cache.BlobCache = cache.NoCache{}
	if cfg.RedisAddr != "" {
		blobCache = cache.NewRedisBlobCache(cfg.RedisAddr, "", 0)
	}
	store := blobstore.New(cfg.ByHashRoot, cfg.ArchiveRoot, nil, blobCache)
	if err := store.EnsureRoots(ctx); err != nil {
		log.Error("ensure blob store roots", "error", err)
		os.Exit(1)
	}

	coordinator := mount.NewCoordinator(*lockDir, mount.ExecHelper{BinPath: *mountHelperBin}, healthChecker{pool})
	tracker := diagnostic.NewTracker()
	kernelReader := diagnostic.DmesgReader{Path: *kernelLog}
	mountChecker := diagnostic.OSMountChecker{MountRoot: cfg.ImageRoot}

	w := worker{
		cfg:         cfg,
		medium:      *medium,
		pool:        pool,
		store:       store,
		coordinator: coordinator,
		tracker:     tracker,
		kernelLog:   kernelReader,
		mountCheck:  mountChecker,
		log:         log,
	}

	for {
		n, err := w.runBatch(ctx)
		if err != nil {
			log.Error("batch failed", "error", err)
			os.Exit(1)
		}
		if *once {
			log.Info("processed one batch", "count", n)
			return
		}
		if ctx.Err() != nil {
			log.Info("shutting down", "reason", ctx.Err())
			return
		}
		if n == 0 {
			log.Info("no pending work, exiting")
			return
		}
	}
}

type healthChecker struct {
	q db.Querier
}

func (h healthChecker) Health(ctx context.Context, mediumHash string) (ntt.Health, error) {
	return db.Health(ctx, h.q, mediumHash)
}

type worker struct {
	cfg         ntt.Config
	medium      string
	pool        db.Beginner
	store       *blobstore.Store
	coordinator *mount.Coordinator
	tracker     *diagnostic.Tracker
	kernelLog   diagnostic.KernelLogReader
	mountCheck  diagnostic.MountChecker
	log         *slog.Logger
}

// runBatch implements one iteration of spec.md §2's loop body and
// returns the number of inodes claimed (0 means the medium is
// drained).
func (w *worker) runBatch(ctx context.Context) (int, error) {
	claimed, err := db.ClaimBatch(ctx, w.pool, w.medium, w.cfg.WorkerID, w.cfg.BatchSize, db.DefaultStaleClaimTimeout)
	if err != nil {
		return 0, fmt.Errorf("claim batch: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	imagePath, err := db.ImagePath(ctx, w.pool, w.medium)
	if err != nil {
		return 0, fmt.Errorf("lookup image path: %w", err)
	}
	if err := w.coordinator.Ensure(ctx, w.medium, imagePath); err != nil {
		var refused *mount.RefusedError
		if errors.As(err, &refused) {
			w.log.Warn("medium refuses mounting", "health", refused.Health)
			return 0, refused
		}
		return 0, fmt.Errorf("ensure mount: %w", err)
	}

	queuedEvents := make([]ntt.DiagnosticEvent, 0)

	cancelled := func() bool { return ctx.Err() != nil }
	results, err := executor.RunBatch(ctx, claimed, cancelled, w.releaseClaim, func(ctx context.Context, ci db.ClaimedInode) (executor.Outcome, error) {
		return w.processInode(ctx, ci, &queuedEvents)
	})
	if err != nil {
		return 0, fmt.Errorf("run batch: %w", err)
	}

	if err := db.CommitBatch(ctx, w.pool, results); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	// Diagnostic events and medium-level aggregates are flushed in
	// their own transactions after the batch commits, so they never
	// extend the claim-holding transaction's lock lifetime (spec.md
	// §4.2, §4.6).
	for _, ev := range queuedEvents {
		if err := db.RecordDiagnosticEvent(ctx, w.pool, w.medium, ev); err != nil {
			w.log.Warn("record diagnostic event failed", "error", err, "inode", ev.InodeNumber)
		}
		if ev.Action == "diagnostic_skip" && containsBeyondEOF(ev.Checks) {
			if err := db.MarkBeyondEOF(ctx, w.pool, w.medium); err != nil {
				w.log.Warn("mark beyond eof failed", "error", err)
			}
		}
	}
	if err := db.CheckAndMarkHighErrorRate(ctx, w.pool, w.medium); err != nil {
		w.log.Warn("check high error rate failed", "error", err)
	}

	w.log.Info("batch committed", "claimed", len(claimed), "committed", len(results))
	return len(claimed), nil
}

// processInode runs the analyzer (C5) and, if it succeeds, the plan
// executor's filesystem phase (C6). Errors from either phase are
// classified and routed through the diagnostic checkpoint (C2)
// identically — spec.md §4.6 makes no distinction between a failure
// while reading/hashing the source and a failure while linking into
// the archive, so neither does this function.
func (w *worker) processInode(ctx context.Context, ci db.ClaimedInode, queuedEvents *[]ntt.DiagnosticEvent) (executor.Outcome, error) {
	in := ci.Inode
	sourcePath := sourceForPaths(w.cfg.ImageRoot, w.medium, ci.Paths)

	plan, err := analyzer.Analyze(ctx, in, ci.Paths, sourcePath, w.store, fmt.Sprintf("%s-%d-%d", w.cfg.WorkerID, in.Device, in.InodeNumber))
	if err != nil {
		return w.applyDiagnostics(ctx, in, executor.FailedOutcome(in, err), queuedEvents), nil
	}

	outcome := executor.ExecuteFilesystem(ctx, in, plan, w.cfg.ArchiveRoot, w.store)
	return w.applyDiagnostics(ctx, in, outcome, queuedEvents), nil
}

// applyDiagnostics runs outcome through the retry checkpoint (C2) when
// it reached a failed_* status, queuing any diagnostic event the
// checkpoint produced and escalating to failed_permanent if the
// checkpoint forces a skip. A Released outcome (the claim is about to
// be released, not committed) and a success both bypass the
// checkpoint — the latter instead clears any retry count the inode
// had accumulated.
func (w *worker) applyDiagnostics(ctx context.Context, in ntt.Inode, outcome executor.Outcome, queuedEvents *[]ntt.DiagnosticEvent) executor.Outcome {
	switch {
	case outcome.Released:
		return outcome

	case outcome.Status == ntt.StatusFailedRetryable || outcome.Status == ntt.StatusFailedPermanent:
		decision := w.tracker.OnFailure(ctx, w.medium, in.InodeNumber, outcome.ErrorType, w.kernelLog, w.mountCheck)
		if decision.Event != nil {
			*queuedEvents = append(*queuedEvents, *decision.Event)
		}
		if decision.ForceSkip {
			outcome.Status = ntt.StatusFailedPermanent
			outcome.ErrorType = ntt.ErrorTypeUnknown
		}
		return outcome

	default:
		w.tracker.Reset(w.medium, in.InodeNumber)
		return outcome
	}
}

func (w *worker) releaseClaim(ctx context.Context, mediumHash string, device, inodeNumber uint64) error {
	return db.ReleaseClaim(ctx, w.pool, mediumHash, device, inodeNumber)
}

func sourceForPaths(imageRoot, mediumHash string, paths []ntt.Path) string {
	if len(paths) == 0 {
		return imageRoot
	}
	return analyzer.SourcePath(imageRoot, mediumHash, paths[0].PathBytes)
}

func containsBeyondEOF(checks []string) bool {
	for _, c := range checks {
		if c == "beyond_eof" {
			return true
		}
	}
	return false
}
