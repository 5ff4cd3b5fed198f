package imports

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reliantlabs/medcat/internal/catalog"
	"github.com/reliantlabs/medcat/internal/extract"
	"github.com/reliantlabs/medcat/internal/reconcile"
	"github.com/reliantlabs/medcat/internal/upload"
)

// Store is the slice of the persistence layer the import lifecycle needs:
// the corpus snapshot for reconciliation and the transactional bulk write.
type Store interface {
	List(ctx context.Context, kind catalog.Kind) ([]catalog.Record, error)
	BulkCreate(ctx context.Context, kind catalog.Kind, records []catalog.Record, importID string) error
}

// Default tunables. Override per service through Options.
var (
	// DefaultPipelineTimeout bounds the upload-and-analyze leg.
	DefaultPipelineTimeout = 10 * time.Minute
	// DefaultSaveTimeout bounds the bulk write.
	DefaultSaveTimeout = 2 * time.Minute
	// DefaultSessionRetention is how long finished sessions stay
	// queryable before they are swept.
	DefaultSessionRetention = 30 * time.Minute
)

// Options configures a Service. Zero values take the defaults.
type Options struct {
	MaxConcurrent   int
	MaxWait         time.Duration
	PipelineTimeout time.Duration
	SaveTimeout     time.Duration
	Retention       time.Duration
}

// Service owns import sessions and drives their pipelines in the
// background. All session access goes through the service; callers poll
// Status for progress.
type Service struct {
	store     Store
	uploader  upload.Uploader
	extractor extract.Extractor
	gate      *Gate

	pipelineTimeout time.Duration
	saveTimeout     time.Duration
	retention       time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

// New wires a Service from its dependencies.
func New(store Store, uploader upload.Uploader, extractor extract.Extractor, opts Options) *Service {
	if opts.PipelineTimeout <= 0 {
		opts.PipelineTimeout = DefaultPipelineTimeout
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultSessionRetention
	}

	return &Service{
		store:           store,
		uploader:        uploader,
		extractor:       extractor,
		gate:            NewGate(opts.MaxConcurrent, opts.MaxWait),
		pipelineTimeout: opts.PipelineTimeout,
		saveTimeout:     opts.SaveTimeout,
		retention:       opts.Retention,
		sessions:        make(map[string]*session),
	}
}

// Start begins an import for one file and returns the session ID
// immediately; the pipeline runs in the background and Status reports its
// progress. The file type is checked before any session exists, so a
// rejected file costs nothing.
//
// Returns ErrBusy when the concurrent-import limit is reached and no slot
// frees up within the wait window.
func (s *Service) Start(ctx context.Context, kind catalog.Kind, fileName string, data []byte) (string, error) {
	def, ok := catalog.Get(kind)
	if !ok {
		return "", fmt.Errorf("unknown record kind %q", kind)
	}
	if err := CheckFileType(fileName, data); err != nil {
		return "", err
	}

	if err := s.gate.Acquire(ctx); err != nil {
		return "", err
	}

	id := uuid.New().String()
	pipelineCtx, cancel := context.WithTimeout(context.Background(), s.pipelineTimeout)

	now := time.Now()
	sess := &session{
		id:        id,
		kind:      kind,
		fileName:  fileName,
		phase:     PhaseUploading,
		decisions: make(map[int]reconcile.Decision),
		cancel:    cancel,
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	// Process in the background with panic recovery so the gate slot is
	// always returned.
	go func() {
		defer s.gate.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import pipeline",
					"session_id", id,
					"kind", kind,
					"panic", r,
				)
				s.fail(sess, 0, fmt.Errorf("internal error: %v", r))
			}
		}()
		s.runPipeline(pipelineCtx, sess, def, data, 0)
	}()

	return id, nil
}

// runPipeline carries one session from uploading through reviewing. epoch
// is the session epoch the work belongs to; every phase change re-checks it
// so a reset while we were busy discards the result instead of applying it.
func (s *Service) runPipeline(ctx context.Context, sess *session, def catalog.Definition, data []byte, epoch int) {
	log := slog.With("session_id", sess.id, "kind", def.Key)

	fileURL, err := s.uploader.Upload(ctx, sess.fileName, data)
	if err != nil {
		log.Error("file upload failed", "file", sess.fileName, "error", err)
		s.fail(sess, epoch, fmt.Errorf("%w: %v", ErrUploadFailed, err))
		return
	}
	if !s.advance(sess, epoch, PhaseAnalyzing, func(ss *session) { ss.fileURL = fileURL }) {
		log.Info("discarding stale upload result")
		return
	}
	log.Debug("file uploaded", "file", sess.fileName, "url", fileURL)

	// The corpus snapshot is taken once here and never refreshed for the
	// life of the session. If it cannot be loaded the import fails; an
	// unreadable corpus is not an empty one.
	existing, err := s.store.List(ctx, sess.kind)
	if err != nil {
		log.Error("corpus snapshot failed", "error", err)
		s.fail(sess, epoch, fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err))
		return
	}

	candidates, err := s.extractor.Extract(ctx, fileURL, def)
	if err != nil {
		log.Error("extraction failed", "file", sess.fileName, "error", err)
		s.fail(sess, epoch, fmt.Errorf("%w: %v", ErrExtractionFailed, err))
		return
	}

	partition, err := reconcile.Reconcile(candidates, sess.kind, existing)
	if err != nil {
		log.Error("reconciliation failed", "error", err)
		s.fail(sess, epoch, fmt.Errorf("%w: %v", ErrReconciliationUnavailable, err))
		return
	}

	if !s.advance(sess, epoch, PhaseReviewing, func(ss *session) { ss.partition = partition }) {
		log.Info("discarding stale analysis result")
		return
	}
	log.Info("analysis complete",
		"candidates", partition.Total(),
		"new", len(partition.New),
		"duplicate", len(partition.Duplicate),
		"invalid", len(partition.Invalid),
		"batch_duplicates", partition.BatchDuplicates,
	)
}

// Status returns the client snapshot of a session.
func (s *Service) Status(id string) (SessionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return SessionView{}, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return sess.view(), nil
}

// SetDecision records a reviewer verdict for the candidate at index. Only
// legal while the session is reviewing; the index must name a partition
// member and edit decisions must carry schema-field overrides.
func (s *Service) SetDecision(id string, index int, d reconcile.Decision) error {
	if !d.Action.Valid() {
		return fmt.Errorf("unknown action %q", d.Action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if sess.phase != PhaseReviewing {
		return phaseMismatch("set decision", sess.phase)
	}
	if _, ok := sess.candidateAt(index); !ok {
		return fmt.Errorf("no candidate at index %d", index)
	}

	if d.Action == reconcile.ActionEdit {
		if len(d.Fields) == 0 {
			return fmt.Errorf("edit decision for index %d has no field overrides", index)
		}
		if err := s.checkFields(sess.kind, d.Fields); err != nil {
			return err
		}
		d.Fields = copyFields(d.Fields)
	} else {
		d.Fields = nil
	}

	sess.decisions[index] = d
	sess.updatedAt = time.Now()
	return nil
}

// EditRecord merges field overrides into the candidate's decision, turning
// it into (or extending) an edit that includes the record. Repeated calls
// accumulate.
func (s *Service) EditRecord(id string, index int, fields map[string]string) error {
	if len(fields) == 0 {
		return fmt.Errorf("no field overrides given")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if sess.phase != PhaseReviewing {
		return phaseMismatch("edit record", sess.phase)
	}
	if _, ok := sess.candidateAt(index); !ok {
		return fmt.Errorf("no candidate at index %d", index)
	}
	if err := s.checkFields(sess.kind, fields); err != nil {
		return err
	}

	d := sess.decisions[index]
	d.Action = reconcile.ActionEdit
	if d.Fields == nil {
		d.Fields = make(map[string]string, len(fields))
	} else {
		d.Fields = copyFields(d.Fields)
	}
	for k, v := range fields {
		d.Fields[k] = v
	}

	sess.decisions[index] = d
	sess.updatedAt = time.Now()
	return nil
}

// Commit resolves the partition with the recorded decisions and saves the
// result in the background. Only legal from reviewing. The save re-takes a
// gate slot; if none is free the commit is rejected with ErrBusy and the
// session stays reviewing.
func (s *Service) Commit(ctx context.Context, id string) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	phase := PhaseIdle
	if ok {
		phase = sess.phase
	}
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if phase != PhaseReviewing {
		return phaseMismatch("commit", phase)
	}

	// Take the gate before the phase flips; the wait is bounded.
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	// The session may have been reset or swept while we waited.
	sess, ok = s.sessions[id]
	if !ok {
		s.mu.Unlock()
		s.gate.Release()
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if sess.phase != PhaseReviewing {
		phase := sess.phase
		s.mu.Unlock()
		s.gate.Release()
		return phaseMismatch("commit", phase)
	}

	epoch := sess.epoch
	records := reconcile.ApplyReview(sess.partition, sess.decisions)

	saveCtx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	sess.phase = PhaseSaving
	sess.cancel = cancel
	sess.updatedAt = time.Now()
	s.mu.Unlock()

	go func() {
		defer s.gate.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import save",
					"session_id", id,
					"kind", sess.kind,
					"panic", r,
				)
				s.fail(sess, epoch, fmt.Errorf("internal error: %v", r))
			}
		}()
		s.runSave(saveCtx, sess, epoch, records)
	}()

	return nil
}

// runSave performs the transactional bulk write for one commit.
func (s *Service) runSave(ctx context.Context, sess *session, epoch int, records []catalog.Record) {
	log := slog.With("session_id", sess.id, "kind", sess.kind)

	if len(records) > 0 {
		if err := s.store.BulkCreate(ctx, sess.kind, records, sess.id); err != nil {
			log.Error("bulk save failed", "records", len(records), "error", err)
			s.fail(sess, epoch, fmt.Errorf("%w: %v", ErrPersistenceFailed, err))
			return
		}
	}

	if !s.advance(sess, epoch, PhaseDone, func(ss *session) { ss.saved = len(records) }) {
		// The write itself is not undone by a reset; the rollback
		// endpoint exists for that.
		log.Info("discarding stale save result", "records", len(records))
		return
	}
	log.Info("import committed", "records", len(records))
	s.cleanup(sess.id, s.retention)
}

// Reset abandons the session and returns it to idle, from any phase.
// In-flight work is cancelled where possible; work that completes anyway
// finds its epoch stale and is discarded, so a late success cannot
// resurrect a session the operator walked away from.
func (s *Service) Reset(id string) error {
	s.mu.Lock()

	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}

	wasBusy := sess.phase.Busy()
	sess.epoch++
	sess.phase = PhaseIdle
	sess.fileURL = ""
	sess.partition = reconcile.Partition{}
	sess.decisions = make(map[int]reconcile.Decision)
	sess.saved = 0
	sess.err = nil
	sess.updatedAt = time.Now()

	cancel := sess.cancel
	sess.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.cleanup(id, s.retention)

	slog.Info("import session reset", "session_id", id, "cancelled_work", wasBusy)
	return nil
}

// GateStatus reports the concurrency gate for monitoring.
func (s *Service) GateStatus() GateStatus {
	return s.gate.Status()
}

// SessionCount returns the number of resident sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// WaitForDrain blocks until no pipeline holds a gate slot, for shutdown.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.gate.WaitForDrain(ctx)
}

// advance moves the session to the next phase and applies extra mutations
// under the lock. It refuses, returning false, when the session's epoch no
// longer matches: the session was reset while the work ran and the result
// must be discarded. An edge the phase machine forbids is refused the same
// way.
func (s *Service) advance(sess *session, epoch int, next Phase, apply func(*session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.epoch != epoch {
		return false
	}
	if !sess.phase.CanTransition(next) {
		slog.Warn("refusing illegal phase transition",
			"session_id", sess.id, "from", sess.phase, "to", next)
		return false
	}
	sess.phase = next
	sess.updatedAt = time.Now()
	if apply != nil {
		apply(sess)
	}
	if next.Terminal() {
		sess.cancel = nil
	}
	return true
}

// fail moves the session to the error phase carrying err, unless the
// session was reset in the meantime.
func (s *Service) fail(sess *session, epoch int, err error) {
	if !s.advance(sess, epoch, PhaseError, func(ss *session) { ss.err = err }) {
		slog.Info("discarding stale pipeline error", "session_id", sess.id, "error", err)
		return
	}
	s.cleanup(sess.id, s.retention)
}

// cleanup removes the session from the map after delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	})
}

// checkFields verifies every override names a schema field of the kind.
func (s *Service) checkFields(kind catalog.Kind, fields map[string]string) error {
	def, ok := catalog.Get(kind)
	if !ok {
		return fmt.Errorf("unknown record kind %q", kind)
	}
	for name := range fields {
		if !def.HasField(name) {
			return fmt.Errorf("field %q is not in the %s schema", name, kind)
		}
	}
	return nil
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
