package main

import (
	"sync"
)

// Registry is the process-wide mapping from bot name to its automation
// record. The lock guards only map shape and record fields; it is never
// held across network calls, so unrelated bots stay fully parallel.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*BotRecord
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*BotRecord),
	}
}

// TryGet returns a copy of the record for the given bot, if any.
// Callers get a snapshot, never a live reference.
func (r *Registry) TryGet(botName string) (BotRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[botName]
	if !ok {
		return BotRecord{}, false
	}
	return *rec, true
}

// TryInsert adds a record for the bot. Returns false if one already
// exists; enable is not idempotent over an existing record.
func (r *Registry) TryInsert(botName string, rec BotRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[botName]; ok {
		return false
	}
	r.records[botName] = &rec
	return true
}

// Remove deletes the bot's record. Returns false if it was absent.
func (r *Registry) Remove(botName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[botName]; !ok {
		return false
	}
	delete(r.records, botName)
	return true
}

// Update applies an atomic read-modify-write to the bot's record.
// Returns false if the record does not exist.
func (r *Registry) Update(botName string, mutate func(*BotRecord)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[botName]
	if !ok {
		return false
	}
	mutate(rec)
	return true
}

// Snapshot copies the full mapping for persistence
func (r *Registry) Snapshot() map[string]BotRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]BotRecord, len(r.records))
	for name, rec := range r.records {
		out[name] = *rec
	}
	return out
}

// Load replaces the registry contents, used once at startup
func (r *Registry) Load(records map[string]BotRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]*BotRecord, len(records))
	for name, rec := range records {
		copied := rec
		r.records[name] = &copied
	}
}

// EnabledBots returns the names of all bots with automation enabled
func (r *Registry) EnabledBots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, rec := range r.records {
		if rec.Enabled {
			names = append(names, name)
		}
	}
	return names
}
