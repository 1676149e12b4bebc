package synchronizer

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/circuit/internal/ir"
)

type key struct {
	channel string
	target  string
}

// pendingTarget is one (channel, target) queued this tick. events holds
// the latest send of each source, oldest first.
type pendingTarget struct {
	key    key
	events []Event
}

type cacheEntry struct {
	event Event
	hash  string
}

// Synchronizer is the replication channel of one machine.
type Synchronizer struct {
	mu        sync.RWMutex
	schemas   map[string]*jsonschema.Schema
	pending   []pendingTarget
	pendingAt map[key]int
	cache     map[key]cacheEntry
	observers map[int]Observer
	nextObs   int
	seq       int64
	lastTick  int64
	stats     Stats
	logger    *slog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. Default: a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithStartSeq resumes sequence numbering after seq, e.g. from the last
// event persisted in the store.
func WithStartSeq(seq int64) Option {
	return func(s *Synchronizer) { s.seq = seq }
}

// New creates a synchronizer with the built-in channels registered.
func New(opts ...Option) *Synchronizer {
	s := &Synchronizer{
		schemas:   make(map[string]*jsonschema.Schema),
		pendingAt: make(map[key]int),
		cache:     make(map[key]cacheEntry),
		observers: make(map[int]Observer),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, ch := range builtinChannels {
		if err := s.Register(ch.name, ch.schema); err != nil {
			panic(fmt.Sprintf("builtin channel %s: %v", ch.name, err))
		}
	}
	return s
}

// Register adds a channel whose payloads must satisfy the given JSON Schema.
// Registering an existing name replaces its schema.
func (s *Synchronizer) Register(channel, schema string) error {
	compiled, err := jsonschema.CompileString(channel+".schema.json", schema)
	if err != nil {
		return fmt.Errorf("compile schema for channel %s: %w", channel, err)
	}
	s.mu.Lock()
	s.schemas[channel] = compiled
	s.mu.Unlock()
	return nil
}

// Channels returns registered channel names, sorted.
func (s *Synchronizer) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Send validates ev and queues it for the current tick. A later send to the
// same (channel, target) before Flush supersedes this one while keeping its
// dispatch position. Sends from other sources are kept until Flush, so a
// superseding sender that dies this tick does not take the target down
// with it.
func (s *Synchronizer) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(ev); err != nil {
		s.stats.Rejected++
		return err
	}
	ev.Cleared = false
	ev.Payload = ev.Payload.Clone()
	s.stats.Sent++

	k := key{ev.Channel, ev.Target}
	if i, ok := s.pendingAt[k]; ok {
		pt := &s.pending[i]
		pt.events = slices.DeleteFunc(pt.events, func(e Event) bool { return e.Source == ev.Source })
		pt.events = append(pt.events, ev)
		s.stats.Coalesced++
		return nil
	}
	s.pendingAt[k] = len(s.pending)
	s.pending = append(s.pending, pendingTarget{key: k, events: []Event{ev}})
	return nil
}

func (s *Synchronizer) validate(ev Event) error {
	schema, ok := s.schemas[ev.Channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ev.Channel)
	}
	if ev.Target == "" {
		return ErrEmptyTarget
	}
	if ev.Payload == nil {
		return fmt.Errorf("%w: %s/%s: payload is required", ErrMalformedPayload, ev.Channel, ev.Target)
	}
	if _, err := ir.MarshalCanonical(ev.Payload); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrMalformedPayload, ev.Channel, ev.Target, err)
	}
	if err := schema.Validate(ir.ToAny(ev.Payload)); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrMalformedPayload, ev.Channel, ev.Target, err)
	}
	return nil
}

// Pending returns the number of targets with queued events.
func (s *Synchronizer) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Flush dispatches one event per target queued during tick, in first-send
// order. Each target gets its most recent event whose source is alive; a
// target with no live sender is dropped. Events identical to the cached
// state are suppressed. alive may be nil to keep every event. Returns the
// dispatched events.
func (s *Synchronizer) Flush(tick int64, alive func(ir.BlockID) bool) []Event {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	clear(s.pendingAt)
	s.lastTick = tick

	var out []Event
	for _, pt := range pending {
		ev, ok := latestAlive(pt.events, alive)
		if !ok {
			s.stats.Dropped++
			continue
		}
		hash, err := ir.EventHash(ev.Channel, ev.Target, ev.Payload)
		if err != nil {
			// Payloads were canonicalized in Send; this cannot fail.
			s.logger.Error("event hash failed", "channel", ev.Channel, "target", ev.Target, "error", err)
			continue
		}
		k := key{ev.Channel, ev.Target}
		if cached, ok := s.cache[k]; ok && cached.hash == hash {
			s.stats.Deduplicated++
			continue
		}
		s.seq++
		ev.Tick = tick
		ev.Seq = s.seq
		s.cache[k] = cacheEntry{event: ev, hash: hash}
		out = append(out, ev)
	}
	s.stats.Dispatched += int64(len(out))
	observers := s.observerList()
	s.mu.Unlock()

	s.notify(observers, out)
	return out
}

func latestAlive(events []Event, alive func(ir.BlockID) bool) (Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if alive == nil || alive(events[i].Source) {
			return events[i], true
		}
	}
	return Event{}, false
}

// Forget withdraws every cached state emitted by source, drops its pending
// events and dispatches a cleared event per withdrawn target. Called when a
// node is destroyed.
func (s *Synchronizer) Forget(source ir.BlockID) []Event {
	s.mu.Lock()
	kept := s.pending[:0]
	clear(s.pendingAt)
	for _, pt := range s.pending {
		n := len(pt.events)
		pt.events = slices.DeleteFunc(pt.events, func(e Event) bool { return e.Source == source })
		s.stats.Dropped += int64(n - len(pt.events))
		if len(pt.events) == 0 {
			continue
		}
		s.pendingAt[pt.key] = len(kept)
		kept = append(kept, pt)
	}
	s.pending = kept

	var withdrawn []Event
	for k, entry := range s.cache {
		if entry.event.Source == source {
			withdrawn = append(withdrawn, entry.event)
			delete(s.cache, k)
		}
	}
	slices.SortFunc(withdrawn, func(a, b Event) int { return cmp.Compare(a.Seq, b.Seq) })

	out := make([]Event, 0, len(withdrawn))
	for _, ev := range withdrawn {
		s.seq++
		out = append(out, Event{
			Channel: ev.Channel,
			Target:  ev.Target,
			Tick:    s.lastTick,
			Seq:     s.seq,
			Cleared: true,
			Source:  source,
		})
	}
	s.stats.Dispatched += int64(len(out))
	observers := s.observerList()
	s.mu.Unlock()

	s.notify(observers, out)
	return out
}

// Restore rebuilds the late-join cache from a persisted event log, applied
// in seq order. Cleared events withdraw their target. Numbering resumes
// after the highest restored seq. Observers are not notified.
func (s *Synchronizer) Restore(events []Event) error {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b Event) int { return cmp.Compare(a.Seq, b.Seq) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range sorted {
		k := key{ev.Channel, ev.Target}
		if ev.Cleared {
			delete(s.cache, k)
		} else {
			if err := s.validate(ev); err != nil {
				return fmt.Errorf("restore seq %d: %w", ev.Seq, err)
			}
			hash, err := ir.EventHash(ev.Channel, ev.Target, ev.Payload)
			if err != nil {
				return fmt.Errorf("restore seq %d: %w", ev.Seq, err)
			}
			ev.Payload = ev.Payload.Clone()
			s.cache[k] = cacheEntry{event: ev, hash: hash}
		}
		s.seq = max(s.seq, ev.Seq)
		s.lastTick = max(s.lastTick, ev.Tick)
	}
	s.logger.Debug("synchronizer restored", "events", len(sorted), "cached", len(s.cache), "seq", s.seq)
	return nil
}

// GetExisting returns the last dispatched payload for (channel, target).
func (s *Synchronizer) GetExisting(channel, target string) (ir.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key{channel, target}]
	if !ok {
		return nil, false
	}
	return entry.event.Payload.Clone(), true
}

// Existing returns the cached state of one channel ordered by seq. An empty
// channel name returns every channel.
func (s *Synchronizer) Existing(channel string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(channel)
}

func (s *Synchronizer) snapshot(channel string) []Event {
	out := make([]Event, 0, len(s.cache))
	for k, entry := range s.cache {
		if channel == "" || k.channel == channel {
			ev := entry.event
			ev.Payload = ev.Payload.Clone()
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b Event) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

// Subscribe registers obs for live events and returns a replay of every
// cached entry that obs should apply first, plus a function that
// unsubscribes. Replay and registration happen atomically, so no dispatched
// event is missed; one may be seen in both, which is harmless because
// events carry full state.
func (s *Synchronizer) Subscribe(obs Observer) (replay []Event, cancel func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	replay = s.snapshot("")
	s.mu.Unlock()

	var once sync.Once
	return replay, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Observers returns the number of subscribed observers.
func (s *Synchronizer) Observers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

// Seq returns the last assigned sequence number.
func (s *Synchronizer) Seq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Stats returns a copy of the cumulative counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// observerList returns observers in subscription order. Caller holds mu.
func (s *Synchronizer) observerList() []Observer {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Observer, len(ids))
	for i, id := range ids {
		out[i] = s.observers[id]
	}
	return out
}

// notify delivers outside the lock. A panicking observer is logged and
// skipped; it never reaches the evaluator.
func (s *Synchronizer) notify(observers []Observer, events []Event) {
	if len(events) == 0 {
		return
	}
	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("observer panicked", "panic", r)
				}
			}()
			for _, ev := range events {
				obs.Deliver(ev)
			}
		}()
	}
}
