package service

import "sync"

// EditState is the dirty flag of an editing surface. Every edit bumps the revision, so a save confirmed after a newer
// edit doesn't mark the surface as pristine.
type EditState struct {
	mutex    sync.Mutex
	dirty    bool
	revision uint64
}

// MarkDirty records an edit.
func (es *EditState) MarkDirty() {
	es.mutex.Lock()
	defer es.mutex.Unlock()
	es.dirty = true
	es.revision++
}

// Dirty reports if there are unsaved edits.
func (es *EditState) Dirty() bool {
	es.mutex.Lock()
	defer es.mutex.Unlock()
	return es.dirty
}

// Revision identifies the last edit.
func (es *EditState) Revision() uint64 {
	es.mutex.Lock()
	defer es.mutex.Unlock()
	return es.revision
}

// MarkPristine clears the flag when no edit happened after the given revision. It reports if the flag was cleared.
func (es *EditState) MarkPristine(revision uint64) bool {
	es.mutex.Lock()
	defer es.mutex.Unlock()
	if es.revision != revision {
		return false
	}
	es.dirty = false
	return true
}
