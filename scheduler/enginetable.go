package scheduler

import "github.com/gbasilveira/taskscheduler/dependency"

// engineTable holds everything the scheduler knows about the live set of
// engines: the LRU-ordered parallel targets/loads lists used by the
// chooser strategies, and per-engine pending/completed/failed bookkeeping.
// Grounded on task_scheduler.py's `self.targets`, `self.loads`,
// `self.pending`, `self.completed`, `self.failed`.
type engineTable struct {
	targets []EngineID
	loads   []int
	index   map[EngineID]int

	pending   map[EngineID]map[MsgID]*Job
	completed map[EngineID]dependency.Set
	failed    map[EngineID]dependency.Set
}

func newEngineTable() *engineTable {
	return &engineTable{
		index:     make(map[EngineID]int),
		pending:   make(map[EngineID]map[MsgID]*Job),
		completed: make(map[EngineID]dependency.Set),
		failed:    make(map[EngineID]dependency.Set),
	}
}

// Register adds a new engine at the front of the LRU list (most recently
// available) and initializes its bookkeeping maps.
func (t *engineTable) Register(id EngineID) {
	t.targets = append([]EngineID{id}, t.targets...)
	t.loads = append([]int{0}, t.loads...)
	t.reindex()
	t.pending[id] = make(map[MsgID]*Job)
	t.completed[id] = make(dependency.Set)
	t.failed[id] = make(dependency.Set)
}

// Unregister removes id from the LRU list. It does not touch the
// pending/completed/failed maps: the caller decides whether pending tasks
// need stranding before dropping them.
func (t *engineTable) Unregister(id EngineID) bool {
	idx, ok := t.index[id]
	if !ok {
		return false
	}
	t.targets = append(t.targets[:idx], t.targets[idx+1:]...)
	t.loads = append(t.loads[:idx], t.loads[idx+1:]...)
	t.reindex()
	return true
}

// DropEngineMaps removes id's pending/completed/failed bookkeeping
// entirely. Called once an unregistered engine has no outstanding tasks
// left to strand. destinations is deliberately never cleaned up by the
// caller: past dispatch destinations may still be read by follow
// dependencies naming this engine's former tasks.
func (t *engineTable) DropEngineMaps(id EngineID) {
	delete(t.pending, id)
	delete(t.completed, id)
	delete(t.failed, id)
}

func (t *engineTable) reindex() {
	t.index = make(map[EngineID]int, len(t.targets))
	for i, id := range t.targets {
		t.index[id] = i
	}
}

// Index returns the LRU-list position of id.
func (t *engineTable) Index(id EngineID) (int, bool) {
	idx, ok := t.index[id]
	return idx, ok
}

// Len returns the number of registered engines.
func (t *engineTable) Len() int {
	return len(t.targets)
}

// TargetAt returns the engine id at LRU position idx.
func (t *engineTable) TargetAt(idx int) EngineID {
	return t.targets[idx]
}

// Loads returns the current load vector, safe for a chooser to read but
// not mutate (a defensive copy).
func (t *engineTable) Loads() []int {
	out := make([]int, len(t.loads))
	copy(out, t.loads)
	return out
}

// AddJob accounts for a new dispatch to the engine at idx: optionally
// increments its load, then rotates it to the tail of the LRU list (least
// recently used engines sort toward the front, so the chooser naturally
// prefers them again before an engine that was just given work).
func (t *engineTable) AddJob(idx int, accountLoad bool) {
	if accountLoad {
		t.loads[idx]++
	}
	id := t.targets[idx]
	load := t.loads[idx]
	t.targets = append(append(t.targets[:idx:idx], t.targets[idx+1:]...), id)
	t.loads = append(append(t.loads[:idx:idx], t.loads[idx+1:]...), load)
	t.reindex()
}

// FinishJob accounts for a completed/failed/stranded dispatch on the
// engine at idx, decrementing its load if load accounting is enabled.
func (t *engineTable) FinishJob(idx int, accountLoad bool) {
	if !accountLoad {
		return
	}
	if idx < 0 || idx >= len(t.loads) {
		return
	}
	if t.loads[idx] > 0 {
		t.loads[idx]--
	}
}

// AddPending records that msgID is outstanding on engine.
func (t *engineTable) AddPending(engine EngineID, job *Job) {
	if m, ok := t.pending[engine]; ok {
		m[job.MsgID] = job
	}
}

// PopPending removes and returns msgID from engine's pending set.
func (t *engineTable) PopPending(engine EngineID, msgID MsgID) (*Job, bool) {
	m, ok := t.pending[engine]
	if !ok {
		return nil, false
	}
	job, ok := m[msgID]
	if ok {
		delete(m, msgID)
	}
	return job, ok
}

// PendingSnapshot returns a copy of engine's outstanding jobs, used when an
// engine is unregistered and its in-flight work must be stranded.
func (t *engineTable) PendingSnapshot(engine EngineID) map[MsgID]*Job {
	m, ok := t.pending[engine]
	if !ok {
		return nil
	}
	out := make(map[MsgID]*Job, len(m))
	for id, job := range m {
		out[id] = job
	}
	return out
}

// PendingCount reports how many tasks are outstanding on engine.
func (t *engineTable) PendingCount(engine EngineID) int {
	return len(t.pending[engine])
}

// MarkCompleted/MarkFailed record a finished task's outcome on the engine
// that ran it.
func (t *engineTable) MarkCompleted(engine EngineID, msgID MsgID) {
	if s, ok := t.completed[engine]; ok {
		s[string(msgID)] = struct{}{}
	}
}

func (t *engineTable) MarkFailed(engine EngineID, msgID MsgID) {
	if s, ok := t.failed[engine]; ok {
		s[string(msgID)] = struct{}{}
	}
}

// Completed/Failed return the (possibly nil) outcome sets for engine.
func (t *engineTable) Completed(engine EngineID) dependency.Set {
	return t.completed[engine]
}

func (t *engineTable) Failed(engine EngineID) dependency.Set {
	return t.failed[engine]
}
