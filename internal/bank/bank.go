package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/mechbank/internal/changelog"
	"github.com/roach88/mechbank/internal/citation"
	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/schema"
	"github.com/roach88/mechbank/internal/store"
	"github.com/roach88/mechbank/internal/versioning"
)

// Outcome distinguishes a committed mutation from a no-op.
type Outcome string

const (
	// OutcomeCommitted means the record was written with a changelog entry.
	OutcomeCommitted Outcome = "committed"
	// OutcomeNoOp means the edit changed nothing version-relevant; nothing
	// was written and no entry was appended.
	OutcomeNoOp Outcome = "noop"
)

// Result is the outcome of a successful Propose or Update.
type Result struct {
	Record   mechanism.Record          `json:"record"`
	Outcome  Outcome                   `json:"outcome"`
	Entry    *mechanism.ChangelogEntry `json:"entry,omitempty"` // Nil for no-ops
	Decision versioning.Decision       `json:"-"`
}

// Bank is the Mechanism Store: the only path that mutates records.
//
// Thread-safety: all methods are safe for concurrent use. Mutations of the
// same id are serialized; a read sees a record either fully before or fully
// after a concurrent commit.
type Bank struct {
	store      *store.Store
	ledger     *changelog.Ledger
	validator  *schema.Validator
	classifier *versioning.Classifier
	clock      Clock
	ids        IDGenerator
	locks      *keyedMutex
}

// Option configures a Bank.
type Option func(*Bank)

// WithValidator replaces the default schema validator, e.g. to extend the
// category set.
func WithValidator(v *schema.Validator) Option {
	return func(b *Bank) { b.validator = v }
}

// WithClassifier replaces the default version classifier, e.g. to change
// the major threshold.
func WithClassifier(c *versioning.Classifier) Option {
	return func(b *Bank) { b.classifier = c }
}

// WithClock sets the clock used to stamp last_updated and entry timestamps.
func WithClock(c Clock) Option {
	return func(b *Bank) { b.clock = c }
}

// WithIDGenerator sets the generator used for proposals without an id.
func WithIDGenerator(g IDGenerator) Option {
	return func(b *Bank) { b.ids = g }
}

// New creates a Bank over s.
func New(s *store.Store, opts ...Option) *Bank {
	b := &Bank{
		store:      s,
		ledger:     changelog.New(s),
		validator:  schema.New(),
		classifier: versioning.New(),
		clock:      SystemClock{},
		ids:        UUIDv7Generator{},
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ledger returns the changelog ledger over the bank's store.
func (b *Bank) Ledger() *changelog.Ledger {
	return b.ledger
}

// Validator returns the schema validator in use.
func (b *Bank) Validator() *schema.Validator {
	return b.validator
}

// Validate runs the schema validator and the citation checker over r and
// aggregates their findings. It returns nil when r is valid.
func (b *Bank) Validate(r mechanism.Record) *mechanism.ValidationFailure {
	return CheckRecord(b.validator, r)
}

// CheckRecord is Validate without a bank, for dry runs that never open a
// store. Id uniqueness is not checked.
func CheckRecord(v *schema.Validator, r mechanism.Record) *mechanism.ValidationFailure {
	f := &mechanism.ValidationFailure{Fields: v.Validate(r)}
	// A missing citation is already reported as a required field.
	if r.Evidence.Citation != "" {
		f.Citation = citation.Check(r.Evidence.Citation)
	}
	if f.Empty() {
		return nil
	}
	return f
}

// Propose adds a new record at version 1.0. A missing id is generated.
// Version, last_updated and retired on r are ignored; the bank owns them.
//
// Returns a *mechanism.ValidationFailure if r is invalid or its id is
// already assigned (retired ids included).
func (b *Bank) Propose(ctx context.Context, r mechanism.Record) (res Result, err error) {
	r = r.Clone()
	if r.ID == "" {
		r.ID = b.ids.Generate()
	}

	ctx, span := startSpan(ctx, "Propose", r.ID)
	defer func() { endSpan(span, err) }()

	unlock := b.locks.Lock(r.ID)
	defer unlock()

	r.Version = mechanism.Zero
	r.Retired = false
	r.LastUpdated = time.Time{}

	failure := b.Validate(r)
	exists, err := b.store.Exists(ctx, r.ID)
	if err != nil {
		mutationsTotal.WithLabelValues("propose", outcomeError).Inc()
		return Result{}, fmt.Errorf("propose %s: %w", r.ID, err)
	}
	if exists {
		failure = withDuplicateID(failure, r.ID)
	}
	if failure != nil {
		mutationsTotal.WithLabelValues("propose", outcomeRejected).Inc()
		slog.Debug("proposal rejected", "mechanism_id", r.ID, "problems", failure.Count())
		return Result{}, failure
	}

	decision := b.classifier.Classify(nil, r)
	res, err = b.commit(ctx, r, nil, decision)
	if errors.Is(err, store.ErrDuplicateID) {
		// Lost a race with another process sharing the database.
		mutationsTotal.WithLabelValues("propose", outcomeRejected).Inc()
		return Result{}, withDuplicateID(nil, r.ID)
	}
	if err != nil {
		mutationsTotal.WithLabelValues("propose", outcomeError).Inc()
		return Result{}, fmt.Errorf("propose %s: %w", r.ID, err)
	}

	mutationsTotal.WithLabelValues("propose", outcomeCommitted).Inc()
	slog.Info("mechanism proposed", "mechanism_id", r.ID, "version", res.Record.Version.String())
	return res, nil
}

// Update merges patch onto the stored record, re-validates and
// re-classifies it, and commits the result with exactly one changelog
// entry. An edit that changes nothing version-relevant returns
// OutcomeNoOp and writes nothing.
//
// Errors:
//   - *mechanism.NotFoundError for an unknown id
//   - *mechanism.RetiredError if the record is retired
//   - *mechanism.ConsistencyError if the record is quarantined
//   - *mechanism.ValidationFailure if the merged record is invalid
func (b *Bank) Update(ctx context.Context, id string, patch mechanism.Patch) (res Result, err error) {
	ctx, span := startSpan(ctx, "Update", id)
	defer func() { endSpan(span, err) }()

	unlock := b.locks.Lock(id)
	defer unlock()

	current, err := b.store.ReadRecord(ctx, id)
	if err != nil {
		b.countError("update", err)
		return Result{}, err
	}
	if current.Retired {
		mutationsTotal.WithLabelValues("update", outcomeRejected).Inc()
		return Result{}, &mechanism.RetiredError{ID: id}
	}
	if err := b.ensureConsistent(ctx, current); err != nil {
		b.countError("update", err)
		return Result{}, err
	}

	next := patch.Apply(current)
	if failure := b.Validate(next); failure != nil {
		mutationsTotal.WithLabelValues("update", outcomeRejected).Inc()
		slog.Debug("update rejected", "mechanism_id", id, "problems", failure.Count())
		return Result{}, failure
	}

	decision := b.classifier.Classify(&current, next)
	span.SetAttributes(attribute.String("mechanism.bump", string(decision.Kind)))
	if decision.Kind == versioning.KindNoOp {
		mutationsTotal.WithLabelValues("update", outcomeNoOp).Inc()
		slog.Debug("update is a no-op", "mechanism_id", id, "version", current.Version.String())
		return Result{Record: current, Outcome: OutcomeNoOp, Decision: decision}, nil
	}

	prev := current.Version
	res, err = b.commit(ctx, next, &prev, decision)
	if err != nil {
		mutationsTotal.WithLabelValues("update", outcomeError).Inc()
		return Result{}, fmt.Errorf("update %s: %w", id, err)
	}

	mutationsTotal.WithLabelValues("update", outcomeCommitted).Inc()
	slog.Info("mechanism updated",
		"mechanism_id", id,
		"from", prev.String(),
		"version", res.Record.Version.String(),
		"bump", string(decision.Kind),
		"delta", decision.Delta,
	)
	return res, nil
}

func (b *Bank) countError(op string, err error) {
	switch {
	case mechanism.IsNotFound(err):
		mutationsTotal.WithLabelValues(op, outcomeRejected).Inc()
	case mechanism.IsConsistency(err):
		mutationsTotal.WithLabelValues(op, outcomeInconsistent).Inc()
	default:
		mutationsTotal.WithLabelValues(op, outcomeError).Inc()
	}
}

// commit stamps r with the decided version and today's date and writes it
// together with its changelog entry.
func (b *Bank) commit(ctx context.Context, r mechanism.Record, prev *mechanism.Version, d versioning.Decision) (Result, error) {
	kind, ok := d.Kind.BumpKind()
	if !ok {
		return Result{}, fmt.Errorf("decision %s is not committable", d.Kind)
	}

	now := b.clock.Now().UTC()
	from := mechanism.Zero
	if prev != nil {
		from = *prev
	}
	r.Version = d.Version
	r.LastUpdated = dateOf(now)

	start := time.Now()
	entry, err := b.store.Commit(ctx, store.Commit{
		Record:   r,
		Previous: prev,
		Entry: mechanism.ChangelogEntry{
			MechanismID: r.ID,
			FromVersion: from,
			ToVersion:   r.Version,
			BumpKind:    kind,
			Timestamp:   now,
			Summary:     d.Summary(),
		},
	})
	commitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{}, err
	}

	bumpsTotal.WithLabelValues(string(kind)).Inc()
	return Result{Record: r, Outcome: OutcomeCommitted, Entry: &entry, Decision: d}, nil
}

// Retire marks a record retired. Retired records stay readable by id, are
// excluded from listings and can no longer be updated. Retiring does not
// change the version and appends no changelog entry; retiring a retired
// record is a no-op. A quarantined record cannot be retired.
func (b *Bank) Retire(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "Retire", id)
	defer func() { endSpan(span, err) }()

	unlock := b.locks.Lock(id)
	defer unlock()

	current, err := b.store.ReadRecord(ctx, id)
	if err != nil {
		b.countError("retire", err)
		if mechanism.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("retire %s: %w", id, err)
	}
	if current.Retired {
		mutationsTotal.WithLabelValues("retire", outcomeNoOp).Inc()
		return nil
	}
	if err := b.ensureConsistent(ctx, current); err != nil {
		b.countError("retire", err)
		return err
	}

	changed, err := b.store.SetRetired(ctx, id)
	if err != nil {
		b.countError("retire", err)
		return fmt.Errorf("retire %s: %w", id, err)
	}
	if !changed {
		mutationsTotal.WithLabelValues("retire", outcomeNoOp).Inc()
		return nil
	}

	mutationsTotal.WithLabelValues("retire", outcomeCommitted).Inc()
	slog.Info("mechanism retired", "mechanism_id", id)
	return nil
}

// Get returns the committed record, retired or not. The bool is false when
// the id is unknown.
func (b *Bank) Get(ctx context.Context, id string) (mechanism.Record, bool, error) {
	r, err := b.store.ReadRecord(ctx, id)
	if mechanism.IsNotFound(err) {
		return mechanism.Record{}, false, nil
	}
	if err != nil {
		return mechanism.Record{}, false, err
	}
	return r, true, nil
}

// ensureConsistent rejects mutation of a quarantined record, and
// quarantines a record whose history no longer replays to its version.
func (b *Bank) ensureConsistent(ctx context.Context, r mechanism.Record) error {
	q, err := b.store.ReadQuarantine(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("check quarantine %s: %w", r.ID, err)
	}
	if q != nil {
		return q
	}

	ce, err := b.ledger.VerifyRecord(ctx, r)
	if err != nil {
		return err
	}
	if ce != nil {
		if err := b.quarantine(ctx, *ce); err != nil {
			return err
		}
		return ce
	}
	return nil
}

func (b *Bank) quarantine(ctx context.Context, ce mechanism.ConsistencyError) error {
	if err := b.store.WriteQuarantine(ctx, ce, b.clock.Now()); err != nil {
		return err
	}
	slog.Error("mechanism quarantined",
		"mechanism_id", ce.ID,
		"stored", ce.Stored.String(),
		"replayed", ce.Replayed.String(),
		"reason", ce.Reason,
	)
	return b.refreshQuarantineGauge(ctx)
}

func (b *Bank) refreshQuarantineGauge(ctx context.Context) error {
	all, err := b.store.ListQuarantine(ctx)
	if err != nil {
		return err
	}
	quarantined.Set(float64(len(all)))
	return nil
}

// Verify replays the changelog of every record and quarantines each one
// whose stored version does not match. It reports the inconsistencies and
// never repairs them.
func (b *Bank) Verify(ctx context.Context) (found []mechanism.ConsistencyError, err error) {
	ctx, span := startSpan(ctx, "Verify", "")
	defer func() { endSpan(span, err) }()

	candidates, err := b.ledger.Verify(ctx)
	if err != nil {
		return nil, err
	}

	found = []mechanism.ConsistencyError{}
	for _, c := range candidates {
		// Re-check under the id lock so an in-flight commit is not mistaken
		// for corruption.
		ce, err := b.recheck(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if ce != nil {
			found = append(found, *ce)
		}
	}

	span.SetAttributes(attribute.Int("mechanism.inconsistent", len(found)))
	if len(found) == 0 {
		slog.Debug("changelog verified")
	}
	return found, b.refreshQuarantineGauge(ctx)
}

func (b *Bank) recheck(ctx context.Context, id string) (*mechanism.ConsistencyError, error) {
	unlock := b.locks.Lock(id)
	defer unlock()

	r, err := b.store.ReadRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	ce, err := b.ledger.VerifyRecord(ctx, r)
	if err != nil || ce == nil {
		return nil, err
	}
	if err := b.quarantine(ctx, *ce); err != nil {
		return nil, err
	}
	return ce, nil
}

// Reconcile re-runs the replay check for one record. If the history now
// reproduces the stored version the quarantine is lifted and nil is
// returned; otherwise the record stays quarantined and the fresh
// *mechanism.ConsistencyError is returned.
func (b *Bank) Reconcile(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "Reconcile", id)
	defer func() { endSpan(span, err) }()

	unlock := b.locks.Lock(id)
	defer unlock()

	r, err := b.store.ReadRecord(ctx, id)
	if err != nil {
		return err
	}
	ce, err := b.ledger.VerifyRecord(ctx, r)
	if err != nil {
		return err
	}
	if ce != nil {
		if err := b.quarantine(ctx, *ce); err != nil {
			return err
		}
		return ce
	}

	if err := b.store.ClearQuarantine(ctx, id); err != nil {
		return err
	}
	slog.Info("mechanism reconciled", "mechanism_id", id, "version", r.Version.String())
	return b.refreshQuarantineGauge(ctx)
}

// Quarantined lists the stored consistency findings.
func (b *Bank) Quarantined(ctx context.Context) ([]mechanism.ConsistencyError, error) {
	return b.store.ListQuarantine(ctx)
}

// withDuplicateID adds the duplicate-id field error to f.
func withDuplicateID(f *mechanism.ValidationFailure, id string) *mechanism.ValidationFailure {
	if f == nil {
		f = &mechanism.ValidationFailure{}
	}
	f.Fields = append(f.Fields, mechanism.FieldError{
		Field:   "id",
		Code:    mechanism.ErrCodeDuplicateID,
		Message: fmt.Sprintf("id %q is already assigned", id),
	})
	return f
}
