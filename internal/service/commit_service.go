package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helixdb/reconfig/internal/metrics"
	"github.com/helixdb/reconfig/internal/model"
	"github.com/helixdb/reconfig/internal/store"
)

// LogCoordinator submits a reconfiguration record to the replicated log.
// The log's consensus protocol is an external collaborator; confirmation
// of commitment arrives later through ExecutedCallback, not through the
// return value, which only reports acceptance of the submission.
type LogCoordinator interface {
	Coordinate(record *model.ReconfigRecord) (bool, error)
}

// prevDropAttemptFactor bounds how long a prev-drop cleanup record is
// retried, as a multiple of the default retry period
const prevDropAttemptFactor = 32

// CommitService repeatedly drives not-yet-committed reconfiguration
// records into the replicated log until an executed notification
// confirms that the record, or one that dominates it, is committed.
//
// Enqueueing a record does not guarantee a single submission: the same
// record is re-coordinated every retry period until confirmed. The
// engine deduplicates on record identity (name, epoch, kind) and drops
// pending records that a committed record strictly dominates, so
// superseded attempts are never retried forever.
type CommitService struct {
	coordinator     LogCoordinator
	localID         model.NodeID
	isInternalGroup func(name string) bool
	dominates       model.DominanceFunc
	retryPeriod     time.Duration
	logger          *zap.Logger
	metrics         *metrics.Metrics

	mu             sync.Mutex
	pending        map[model.RecordKey]*pendingRecord
	retryOverrides map[string]time.Duration
	executed       *store.RecordCache

	wakeCh   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

type pendingRecord struct {
	record      *model.ReconfigRecord
	enqueuedAt  time.Time
	lastAttempt time.Time
}

// NewCommitService creates a commit engine. dominates may be nil, in
// which case model.EpochDominance is used; isInternalGroup may be nil
// when no coordinator-internal group names exist.
func NewCommitService(
	coordinator LogCoordinator,
	localID model.NodeID,
	isInternalGroup func(name string) bool,
	dominates model.DominanceFunc,
	retryPeriod time.Duration,
	executedTTL time.Duration,
	executedMax int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CommitService {
	if dominates == nil {
		dominates = model.EpochDominance
	}
	if isInternalGroup == nil {
		isInternalGroup = func(string) bool { return false }
	}

	return &CommitService{
		coordinator:     coordinator,
		localID:         localID,
		isInternalGroup: isInternalGroup,
		dominates:       dominates,
		retryPeriod:     retryPeriod,
		logger:          logger,
		metrics:         m,
		pending:         make(map[model.RecordKey]*pendingRecord),
		retryOverrides:  make(map[string]time.Duration),
		executed:        store.NewRecordCache(executedTTL, executedMax),
		wakeCh:          make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
	}
}

// Start begins the background retry loop
func (s *CommitService) Start() {
	s.logger.Info("Starting commit service",
		zap.String("node_id", string(s.localID)),
		zap.Duration("retry_period", s.retryPeriod))
	go s.run()
}

// Close signals the retry loop to exit after its current sweep. In-flight
// coordinate calls finish; no further retries are attempted. Idempotent.
func (s *CommitService) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.logger.Info("Commit service stopped")
	})
}

// Enqueue registers a record for durable commitment. Returns true only
// when a genuinely new pending entry was created: a record equal to one
// already pending, or one obviated by the executed set, is dropped.
func (s *CommitService) Enqueue(record *model.ReconfigRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(record)
}

// EnqueueWithRetryPeriod is Enqueue with a retry-cadence override for
// the record's service name, in effect until changed again. Intended for
// rare latency-sensitive records, not default traffic.
func (s *CommitService) EnqueueWithRetryPeriod(record *model.ReconfigRecord, period time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retryOverrides[record.Name] = period
	return s.enqueueLocked(record)
}

func (s *CommitService) enqueueLocked(record *model.ReconfigRecord) bool {
	if s.obviatedLocked(record) {
		s.metrics.RecordObviation(string(record.Kind))
		s.logger.Debug("Dropping obviated record",
			zap.String("record", record.Summary()))
		return false
	}

	key := record.Key()
	if _, exists := s.pending[key]; exists {
		return false
	}

	s.pending[key] = &pendingRecord{record: record, enqueuedAt: time.Now()}
	s.metrics.RecordQueueSizes(len(s.pending), s.executed.Size())
	s.logger.Debug("Enqueued record", zap.String("record", record.Summary()))
	s.wake()
	return true
}

// ExecutedCallback is the authoritative signal that the log applied this
// record or resolved it otherwise. With handled=true, the exact pending
// match and every pending record the notification strictly dominates are
// removed; returns true iff an exact pending match was removed.
//
// handled=false is normally a no-op (the log refused the record, almost
// always because it was obviated). The one exception: when this node
// initiated a terminal record for a non-internal service name that is
// not already known executed, the notification is processed as if
// handled. Terminal records are only issued after their preconditions
// are locally confirmed, so a refusal can only mean obviation — and the
// notification may have raced ahead of the enqueue call, which would
// otherwise retry forever.
func (s *CommitService) ExecutedCallback(record *model.ReconfigRecord, handled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handled {
		return s.executedLocked(record)
	}

	if record.Initiator == s.localID &&
		record.Kind.IsTerminal() &&
		!s.isInternalGroup(record.Name) &&
		!s.executed.Contains(record.Key()) {
		return s.executedLocked(record)
	}
	return false
}

func (s *CommitService) executedLocked(record *model.ReconfigRecord) bool {
	key := record.Key()
	_, equalRemoved := s.pending[key]
	if equalRemoved {
		delete(s.pending, key)
		s.logger.Debug("Removed committed record from pending",
			zap.String("record", record.Summary()))
	}

	// knock off pending records strictly dominated by this one
	for pendingKey, entry := range s.pending {
		if entry.record.Name == record.Name && s.dominates(entry.record, record) {
			delete(s.pending, pendingKey)
			s.logger.Debug("Knocked off dominated pending record",
				zap.String("record", entry.record.Summary()),
				zap.String("dominated_by", record.Summary()))
		}
	}

	if equalRemoved {
		s.metrics.RecordQueueSizes(len(s.pending), s.executed.Size())
		return true
	}

	// Duplicate executed notifications are legitimate only for merges,
	// which can be multiply successful. Anything else is a defect.
	if s.executed.Contains(key) && !record.Kind.IsMerge() {
		s.logger.DPanic("Duplicate executed notification for non-merge record",
			zap.String("record", record.Summary()))
	}

	// the notification may have arrived before its enqueue: retain it to
	// obviate the enqueue when it lands
	s.executed.RemoveIf(func(r *model.ReconfigRecord) bool {
		return r.Name == record.Name && s.dominates(r, record)
	})
	if s.retainExecuted(record) {
		s.executed.Add(record)
	}

	s.metrics.RecordQueueSizes(len(s.pending), s.executed.Size())
	return false
}

// obviatedLocked reports whether the record is already resolved by the
// executed set. An exact match is consumed in the process.
func (s *CommitService) obviatedLocked(record *model.ReconfigRecord) bool {
	if s.executed.Remove(record.Key()) {
		return true
	}
	return s.executed.Any(func(r *model.ReconfigRecord) bool {
		return r.Name == record.Name && s.dominates(record, r)
	})
}

// retainExecuted bounds what enters the executed cache: records for
// coordinator-internal groups and terminal or merge kinds, the classes
// whose notifications can race ahead of their enqueue
func (s *CommitService) retainExecuted(record *model.ReconfigRecord) bool {
	return s.isInternalGroup(record.Name) || record.Kind.IsTerminal() || record.Kind.IsMerge()
}

// Coordinate submits a record to the log once. Errors from the log are
// contained: logged and treated as not-yet-committed, to be retried.
func (s *CommitService) Coordinate(record *model.ReconfigRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinateLocked(record)
}

func (s *CommitService) coordinateLocked(record *model.ReconfigRecord) bool {
	accepted, err := s.coordinator.Coordinate(record)
	if err != nil {
		s.metrics.RecordCoordinate(string(record.Kind), "error")
		s.logger.Error("Coordinate failed, will retry",
			zap.String("record", record.Summary()),
			zap.Error(err))
		return false
	}

	if accepted {
		s.metrics.RecordCoordinate(string(record.Kind), "submitted")
	} else {
		s.metrics.RecordCoordinate(string(record.Kind), "rejected")
	}
	return accepted
}

// PendingCount returns the number of records awaiting commitment
func (s *CommitService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ExecutedCount returns the number of records retained as executed
func (s *CommitService) ExecutedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed.Size()
}

// run is the background retry loop: sweep, then sleep until the earliest
// next-due retry or an enqueue wake-up. Early wakes are treated as
// spurious and simply loop again.
func (s *CommitService) run() {
	for {
		wait := s.sweep()

		timer := time.NewTimer(wait)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-s.wakeCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// sweep re-coordinates every due pending record and returns how long the
// loop may sleep before the next record comes due
func (s *CommitService) sweep() time.Duration {
	start := time.Now()

	s.mu.Lock()
	now := time.Now()
	earliestDue := now.Add(s.retryPeriod)

	for key, entry := range s.pending {
		if s.expiredLocked(entry, now) {
			delete(s.pending, key)
			s.metrics.RecordExpiredPrevDrop()
			s.logger.Warn("Abandoning prev-drop record after maximum attempt window",
				zap.String("record", entry.record.Summary()),
				zap.Duration("age", now.Sub(entry.enqueuedAt)))
			continue
		}

		period := s.periodForLocked(entry.record.Name)
		due := entry.lastAttempt.Add(period)
		if !now.Before(due) {
			s.coordinateLocked(entry.record)
			entry.lastAttempt = now
			due = now.Add(period)
		}
		if due.Before(earliestDue) {
			earliestDue = due
		}
	}

	s.metrics.RecordQueueSizes(len(s.pending), s.executed.Size())
	s.mu.Unlock()

	s.metrics.RecordSweep(time.Since(start).Seconds())

	wait := time.Until(earliestDue)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// expiredLocked identifies prev-drop cleanup records that have been
// retried past the maximum attempt window. These are best-effort: rather
// than retrying forever, they are treated as permanently unrecoverable.
func (s *CommitService) expiredLocked(entry *pendingRecord, now time.Time) bool {
	return entry.record.Kind == model.KindPrevDropComplete &&
		now.Sub(entry.enqueuedAt) > prevDropAttemptFactor*s.retryPeriod
}

func (s *CommitService) periodForLocked(name string) time.Duration {
	if period, ok := s.retryOverrides[name]; ok {
		return period
	}
	return s.retryPeriod
}

// wake nudges the retry loop without blocking; a wake already in flight
// is enough
func (s *CommitService) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}
