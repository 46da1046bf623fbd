package telemetry

import (
	"sync"
	"time"

	"pecan-telemetry/src/logger"
)

// Store keeps a rolling window of samples per message ID.
//
// All state sits behind one mutex. Every public method reads the clock once
// and uses that instant throughout. Observers are invoked after the lock is
// released, so they may call back into the store.
type Store struct {
	mu        sync.Mutex
	buffers   map[string]*buffer
	order     []string
	retention time.Duration
	observers []observer
	nextObsID uint64

	now    func() time.Time
	logger logger.Logger
}

type buffer struct {
	name        string
	samples     []Sample
	lastUpdated int64
}

// observer holds either fn, run after every mutation, or onSample, run
// only for samples that are still buffered after their ingest.
type observer struct {
	id       uint64
	fn       func(messageID string)
	onSample func(Sample)
}

// Option configures a Store.
type Option func(*Store)

// WithRetentionWindow sets the initial retention window. Invalid windows are
// ignored and the default is kept.
func WithRetentionWindow(window time.Duration) Option {
	return func(s *Store) {
		if validateRetention(window) == nil {
			s.retention = window
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used to report observer failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty store with a 60 second retention window.
func New(opts ...Option) *Store {
	s := &Store{
		buffers:   make(map[string]*buffer),
		retention: DefaultRetentionWindow,
		now:       time.Now,
		logger:    logger.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest appends a decoded message to its buffer and prunes that buffer.
//
// A missing timestamp, or one more than an hour old, is replaced with the
// ingest time. Readings are rounded to 3 decimals. Samples are kept in call
// order, never sorted by timestamp.
func (s *Store) Ingest(msg Message) {
	s.mu.Lock()
	now := s.nowMillis()

	ts := msg.Timestamp
	if ts == 0 || ts < now-staleAfter.Milliseconds() {
		ts = now
	}

	sample := Sample{
		Timestamp:       ts,
		MessageID:       msg.MessageID,
		MessageName:     msg.MessageName,
		Signals:         roundSignals(msg.Signals),
		RawBytesDisplay: msg.RawBytesDisplay,
	}

	buf, ok := s.buffers[msg.MessageID]
	if !ok {
		buf = &buffer{}
		s.buffers[msg.MessageID] = buf
		s.order = append(s.order, msg.MessageID)
	}
	buf.name = msg.MessageName
	buf.samples = append(buf.samples, sample)
	buf.lastUpdated = now
	cutoff := now - s.retention.Milliseconds()
	buf.prune(cutoff)

	var appended *Sample
	if ts >= cutoff {
		appended = &sample
	}
	observers := s.observerSnapshot()
	s.mu.Unlock()

	s.notify(observers, msg.MessageID, appended)
}

// Latest returns the most recently appended sample for a message.
func (s *Store) Latest(messageID string) (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestLocked(messageID)
}

// History returns every retained sample for a message in append order.
func (s *Store) History(messageID string) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[messageID]
	if !ok || len(buf.samples) == 0 {
		return nil
	}
	out := make([]Sample, len(buf.samples))
	copy(out, buf.samples)
	return out
}

// HistoryWindow returns the retained samples no older than window. A
// non-positive window returns the full history.
func (s *Store) HistoryWindow(messageID string, window time.Duration) []Sample {
	if window <= 0 {
		return s.History(messageID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[messageID]
	if !ok {
		return nil
	}
	cutoff := s.nowMillis() - window.Milliseconds()
	var out []Sample
	for _, sample := range buf.samples {
		if sample.Timestamp >= cutoff {
			out = append(out, sample)
		}
	}
	return out
}

// Signal returns one named signal from the latest sample of a message.
func (s *Store) Signal(messageID, name string) (Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample, ok := s.latestLocked(messageID)
	if !ok {
		return Signal{}, false
	}
	sig, ok := sample.Signals[name]
	return sig, ok
}

// MessageIDs lists every message with a buffer, including buffers whose
// samples have all been pruned, in first-seen order.
func (s *Store) MessageIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Messages summarizes every buffer in first-seen order.
func (s *Store) Messages() []MessageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MessageInfo, 0, len(s.order))
	for _, id := range s.order {
		buf := s.buffers[id]
		out = append(out, MessageInfo{
			ID:          id,
			Name:        buf.name,
			SampleCount: len(buf.samples),
			LastUpdated: buf.lastUpdated,
		})
	}
	return out
}

// AllLatest returns the latest sample of every non-empty buffer.
func (s *Store) AllLatest() map[string]Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Sample, len(s.buffers))
	for id, buf := range s.buffers {
		if n := len(buf.samples); n > 0 {
			out[id] = buf.samples[n-1]
		}
	}
	return out
}

// Subscribe registers fn to run after every mutation. fn receives the
// affected message ID, or "" when the change is not specific to one message.
// The returned function removes the registration and may be called any
// number of times.
func (s *Store) Subscribe(fn func(messageID string)) (unsubscribe func()) {
	return s.addObserver(observer{fn: fn})
}

// SubscribeSamples registers fn to receive each ingested sample that
// survives pruning. A sample whose timestamp is already outside the
// retention window is never delivered.
func (s *Store) SubscribeSamples(fn func(Sample)) (unsubscribe func()) {
	return s.addObserver(observer{onSample: fn})
}

func (s *Store) addObserver(o observer) (unsubscribe func()) {
	s.mu.Lock()
	s.nextObsID++
	id := s.nextObsID
	o.id = id
	s.observers = append(s.observers, o)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// RetentionWindow returns the current retention window.
func (s *Store) RetentionWindow() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retention
}

// SetRetentionWindow changes the retention window and prunes every buffer
// against it. Setting the current value again does nothing and notifies
// nobody. Windows under one millisecond return ErrInvalidConfiguration and
// leave the store unchanged.
func (s *Store) SetRetentionWindow(window time.Duration) error {
	if err := validateRetention(window); err != nil {
		return err
	}

	s.mu.Lock()
	if window == s.retention {
		s.mu.Unlock()
		return nil
	}
	s.retention = window
	cutoff := s.nowMillis() - window.Milliseconds()
	for _, buf := range s.buffers {
		buf.prune(cutoff)
	}
	observers := s.observerSnapshot()
	s.mu.Unlock()

	s.notify(observers, "", nil)
	return nil
}

// ClearMessage removes a message buffer entirely, including its name.
func (s *Store) ClearMessage(messageID string) {
	s.mu.Lock()
	if _, ok := s.buffers[messageID]; ok {
		delete(s.buffers, messageID)
		for i, id := range s.order {
			if id == messageID {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
	}
	observers := s.observerSnapshot()
	s.mu.Unlock()

	s.notify(observers, messageID, nil)
}

// Clear removes every buffer.
func (s *Store) Clear() {
	s.mu.Lock()
	s.buffers = make(map[string]*buffer)
	s.order = nil
	observers := s.observerSnapshot()
	s.mu.Unlock()

	s.notify(observers, "", nil)
}

// Stats scans all buffers. The memory estimate is a rough figure for
// dashboards, not an accounting of actual heap use.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalMessages: len(s.buffers)}
	for _, buf := range s.buffers {
		for _, sample := range buf.samples {
			if st.TotalSamples == 0 || sample.Timestamp < st.OldestSample {
				st.OldestSample = sample.Timestamp
			}
			if st.TotalSamples == 0 || sample.Timestamp > st.NewestSample {
				st.NewestSample = sample.Timestamp
			}
			st.TotalSamples++
		}
	}
	st.MemoryEstimateMB = roundTo(float64(st.TotalSamples*assumedBytesPerSample)/(1024*1024), 2)
	return st
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Store) latestLocked(messageID string) (Sample, bool) {
	buf, ok := s.buffers[messageID]
	if !ok || len(buf.samples) == 0 {
		return Sample{}, false
	}
	return buf.samples[len(buf.samples)-1], true
}

func (s *Store) observerSnapshot() []observer {
	if len(s.observers) == 0 {
		return nil
	}
	out := make([]observer, len(s.observers))
	copy(out, s.observers)
	return out
}

func (s *Store) notify(observers []observer, messageID string, appended *Sample) {
	for _, o := range observers {
		if o.onSample != nil && appended == nil {
			continue
		}
		s.call(o, messageID, appended)
	}
}

func (s *Store) call(o observer, messageID string, appended *Sample) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[TelemetryStore] observer %d panicked on %q: %v", o.id, messageID, r)
		}
	}()
	if o.onSample != nil {
		o.onSample(*appended)
		return
	}
	o.fn(messageID)
}

// prune drops samples older than cutoff, keeping the order of the rest.
func (b *buffer) prune(cutoff int64) {
	kept := b.samples[:0]
	for _, sample := range b.samples {
		if sample.Timestamp >= cutoff {
			kept = append(kept, sample)
		}
	}
	clear(b.samples[len(kept):])
	b.samples = kept
}

func roundSignals(in map[string]Signal) map[string]Signal {
	if in == nil {
		return nil
	}
	out := make(map[string]Signal, len(in))
	for name, sig := range in {
		sig.Reading = roundReading(sig.Reading)
		out[name] = sig
	}
	return out
}
