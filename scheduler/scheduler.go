package scheduler

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gbasilveira/taskscheduler/dependency"
)

type registrationEvent struct {
	engine EngineID
	up     bool
}

type bootstrapEvent struct {
	engines []EngineID
}

type timeoutEvent struct {
	job       *Job
	timeoutID uint64
	deadline  time.Time
}

// Scheduler is the single coordinating actor described in spec.md §5: one
// goroutine (Run) owns every field below and is the only code path that
// reads or writes them. Every other goroutine — timers, a transport's
// gRPC handlers, a trigger firing — only ever sends on the scheduler's
// input channels. Grounded throughout on task_scheduler.py's TaskScheduler
// class; the actor shape itself is grounded on
// orchestrator/engine_wrapper.go's single-goroutine EngineWrapper loop.
type Scheduler struct {
	cfg         Config
	chooser     Chooser
	accountLoad bool
	rng         *rand.Rand

	queue    *jobQueue
	graph    *depGraph
	engines  *engineTable
	affinity *AffinityRouter

	retries      map[MsgID]int
	destinations map[MsgID]EngineID
	allKnown     dependency.Set
	allCompleted dependency.Set
	allFailed    dependency.Set
	allDone      dependency.Set

	monitor     *Monitor
	dispatchOut chan<- Dispatch
	replyOut    chan<- Reply

	submissions   chan Submission
	results       chan Result
	registrations chan registrationEvent
	bootstraps    chan bootstrapEvent
	timeoutFire   chan timeoutEvent
	strandedFire  chan EngineID

	done     chan struct{}
	closeWg  sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler constructs a Scheduler ready for Run. dispatchOut receives
// tasks to deliver to engines; replyOut receives results to relay to
// clients. Both are expected to be buffered or backed by an async
// transport — the scheduler never blocks its run loop waiting on them.
func NewScheduler(cfg Config, monitor *Monitor, dispatchOut chan<- Dispatch, replyOut chan<- Reply) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		chooser:     ChooserFor(cfg.Scheme),
		accountLoad: cfg.accountLoad(),
		rng:         rand.New(rand.NewSource(1)),

		queue:    newJobQueue(),
		graph:    newDepGraph(),
		engines:  newEngineTable(),
		affinity: NewAffinityRouter(),

		retries:      make(map[MsgID]int),
		destinations: make(map[MsgID]EngineID),
		allKnown:     make(dependency.Set),
		allCompleted: make(dependency.Set),
		allFailed:    make(dependency.Set),
		allDone:      make(dependency.Set),

		monitor:     monitor,
		dispatchOut: dispatchOut,
		replyOut:    replyOut,

		submissions:   make(chan Submission, 256),
		results:       make(chan Result, 256),
		registrations: make(chan registrationEvent, 32),
		bootstraps:    make(chan bootstrapEvent, 1),
		timeoutFire:   make(chan timeoutEvent, 256),
		strandedFire:  make(chan EngineID, 32),

		done: make(chan struct{}),
	}
}

// Run is the reactor loop. It blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-s.submissions:
			s.dispatchSubmission(sub)
		case res := <-s.results:
			s.dispatchResult(res)
		case reg := <-s.registrations:
			if reg.up {
				s.registerEngine(reg.engine)
			} else {
				s.unregisterEngine(reg.engine)
			}
		case boot := <-s.bootstraps:
			for _, id := range boot.engines {
				s.engines.Register(id)
				if s.affinity != nil {
					s.affinity.AddEngine(id)
				}
			}
			s.updateGraph(nil)
		case evt := <-s.timeoutFire:
			s.jobTimeout(evt)
		case id := <-s.strandedFire:
			s.handleStrandedTasks(id)
		}
	}
}

func (s *Scheduler) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// --- external-facing API: all of these only ever send on a channel ---

// Submit enqueues a task submission. It returns once the submission has
// been handed to the run loop's inbound channel, not once it has been
// processed.
func (s *Scheduler) Submit(ctx context.Context, sub Submission) error {
	select {
	case s.submissions <- sub:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return fmt.Errorf("scheduler stopped")
	}
}

// ReportResult delivers an engine's outcome for a previously dispatched
// task.
func (s *Scheduler) ReportResult(ctx context.Context, res Result) error {
	select {
	case s.results <- res:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return fmt.Errorf("scheduler stopped")
	}
}

// RegisterEngine notifies the scheduler that id is now available for
// placement.
func (s *Scheduler) RegisterEngine(ctx context.Context, id EngineID) error {
	select {
	case s.registrations <- registrationEvent{engine: id, up: true}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return fmt.Errorf("scheduler stopped")
	}
}

// UnregisterEngine notifies the scheduler that id is gone.
func (s *Scheduler) UnregisterEngine(ctx context.Context, id EngineID) error {
	select {
	case s.registrations <- registrationEvent{engine: id, up: false}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return fmt.Errorf("scheduler stopped")
	}
}

// Bootstrap seeds the scheduler with the engine set known at startup,
// before a ServiceDiscovery's ongoing Watch takes over. Grounded on the
// original's one-shot connection_request preceding registration_notification
// events (SPEC_FULL.md §4).
func (s *Scheduler) Bootstrap(ctx context.Context, ids []EngineID) error {
	select {
	case s.bootstraps <- bootstrapEvent{engines: ids}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return fmt.Errorf("scheduler stopped")
	}
}

// Subscribe exposes the scheduler's monitor event stream.
func (s *Scheduler) Subscribe() <-chan *MonitorEvent {
	return s.monitor.Subscribe()
}

// --- internal handlers: only ever called from the Run goroutine ---

func (s *Scheduler) dispatchSubmission(sub Submission) {
	job := &Job{
		MsgID:     sub.MsgID,
		ClientID:  sub.ClientID,
		Payload:   sub.Payload,
		Timeout:   sub.Timeout,
		Submitted: time.Now(),
		Targets:   dependency.NewSet(idsOf(sub.Targets)...),
		Blacklist: make(dependency.Set),
	}
	s.monitor.RecordEvent(&MonitorEvent{Topic: "intask", MsgID: job.MsgID, Timestamp: job.Submitted})

	after := sub.After.toDependency()
	follow := sub.Follow.toDependency()

	if sub.AffinityKey != "" {
		if eng, ok := s.affinity.Resolve(sub.AffinityKey); ok {
			if _, known := s.engines.Index(eng); known {
				job.Targets = dependency.NewSet(string(eng))
			}
		}
	}

	s.allKnown[string(sub.MsgID)] = struct{}{}
	s.retries[job.MsgID] = sub.Retries

	// Canonicalize: under all-semantics, ids already finished in a relevant
	// pool stay satisfied forever and can be dropped, so later Met checks
	// only compare the still-outstanding remainder. A fully met dependency
	// recasts to the empty one.
	if after.All {
		if after.Success {
			after = after.Difference(s.allCompleted)
		}
		if after.Failure {
			after = after.Difference(s.allFailed)
		}
	}
	if after.Met(s.allCompleted, s.allFailed) {
		after = dependency.Dependency{}
	}

	job.After = after
	job.Follow = follow

	// Validate each dependency in turn, after before follow: a malformed
	// reference fails as invalid, a well-formed one that can no longer be
	// satisfied fails as impossible, and the first failure of either kind
	// settles the submission without examining the other dependency.
	for _, dep := range []dependency.Dependency{after, follow} {
		if dep.Empty() {
			continue
		}
		if dep.Contains(string(sub.MsgID)) || !s.knowsAll(dep) {
			s.queue.Put(job)
			s.failUnreachable(job.MsgID, KindInvalidDependency)
			return
		}
		if dep.Unreachable(s.allCompleted, s.allFailed) {
			s.queue.Put(job)
			s.failUnreachable(job.MsgID, KindImpossibleDependency)
			return
		}
	}

	if job.After.Empty() {
		if !s.maybeRun(job) {
			if !s.allFailed.Contains(string(job.MsgID)) {
				s.saveUnmet(job)
			}
		}
		return
	}
	s.saveUnmet(job)
}

// knowsAll reports whether every id dep references has ever been submitted.
func (s *Scheduler) knowsAll(dep dependency.Dependency) bool {
	for id := range dep.IDs {
		if !s.allKnown.Contains(id) {
			return false
		}
	}
	return true
}

func idsOf(engines []EngineID) []string {
	out := make([]string, len(engines))
	for i, e := range engines {
		out[i] = string(e)
	}
	return out
}

func (s *Scheduler) saveUnmet(job *Job) {
	s.queue.PushBack(job)
	for id := range job.Dependents() {
		if !s.allDone.Contains(id) {
			s.graph.Add(MsgID(id), job.MsgID)
		}
	}
	if job.Timeout <= 0 {
		return
	}
	job.TimeoutID++
	tid := job.TimeoutID
	deadline := time.Now().Add(job.Timeout)
	s.closeWg.Add(1)
	go func() {
		defer s.closeWg.Done()
		timer := time.NewTimer(job.Timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case s.timeoutFire <- timeoutEvent{job: job, timeoutID: tid, deadline: deadline}:
			case <-s.done:
			}
		case <-s.done:
		}
	}()
}

func (s *Scheduler) jobTimeout(evt timeoutEvent) {
	if evt.job.TimeoutID != evt.timeoutID {
		return
	}
	now := time.Now()
	if now.Before(evt.deadline.Add(-time.Second)) {
		log.Printf("scheduler: timeout for %s fired more than 1s early (now=%s deadline=%s)", evt.job.MsgID, now, evt.deadline)
	}
	if _, ok := s.queue.Get(evt.job.MsgID); ok {
		s.failUnreachable(evt.job.MsgID, KindTaskTimeout)
	}
}

func (s *Scheduler) availableEngines() []int {
	if s.engines.Len() == 0 {
		return nil
	}
	loads := s.engines.Loads()
	if s.cfg.HWM <= 0 {
		out := make([]int, len(loads))
		for i := range loads {
			out[i] = i
		}
		return out
	}
	out := make([]int, 0, len(loads))
	for i, l := range loads {
		if l < s.cfg.HWM {
			out = append(out, i)
		}
	}
	return out
}

func (s *Scheduler) liveEngineSet() dependency.Set {
	out := make(dependency.Set, s.engines.Len())
	for i := 0; i < s.engines.Len(); i++ {
		out[string(s.engines.TargetAt(i))] = struct{}{}
	}
	return out
}

// maybeRun attempts to place job on an eligible engine right now. It
// returns true iff the job was dispatched. Grounded on task_scheduler.py's
// maybe_run.
func (s *Scheduler) maybeRun(job *Job) bool {
	idle := s.availableEngines()
	if len(idle) == 0 {
		return false
	}

	unfiltered := job.Follow.Empty() && len(job.Targets) == 0 && len(job.Blacklist) == 0
	var candidates []int
	if unfiltered {
		candidates = idle
	} else {
		for _, idx := range idle {
			eng := s.engines.TargetAt(idx)
			if job.Blacklist.Contains(string(eng)) {
				continue
			}
			if len(job.Targets) > 0 && !job.Targets.Contains(string(eng)) {
				continue
			}
			if !job.Follow.Empty() && !job.Follow.Met(s.engines.Completed(eng), s.engines.Failed(eng)) {
				continue
			}
			candidates = append(candidates, idx)
		}
	}

	if len(candidates) == 0 {
		if !job.Follow.Empty() && job.Follow.All {
			dests := make(map[EngineID]struct{})
			for id := range job.Follow.IDs {
				relevant := (job.Follow.Success && s.allCompleted.Contains(id)) ||
					(job.Follow.Failure && s.allFailed.Contains(id))
				if relevant {
					if eng, ok := s.destinations[MsgID(id)]; ok {
						dests[eng] = struct{}{}
					}
				}
			}
			if len(dests) > 1 {
				s.queue.Put(job)
				s.failUnreachable(job.MsgID, KindImpossibleDependency)
				return false
			}
		}
		if len(job.Targets) > 0 {
			job.Targets = job.Targets.Difference(job.Blacklist)
			live := s.liveEngineSet()
			if len(job.Targets) == 0 || !intersects(job.Targets, live) {
				s.queue.Put(job)
				s.failUnreachable(job.MsgID, KindImpossibleDependency)
				return false
			}
		}
		return false
	}

	s.submitTask(job, candidates)
	return true
}

func intersects(a, b dependency.Set) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for id := range small {
		if big.Contains(id) {
			return true
		}
	}
	return false
}

func (s *Scheduler) submitTask(job *Job, candidates []int) {
	allLoads := s.engines.Loads()
	loads := make([]int, len(candidates))
	for i, idx := range candidates {
		loads[i] = allLoads[idx]
	}
	pick := s.chooser(loads, s.rng)
	idx := candidates[pick]
	eng := s.engines.TargetAt(idx)

	s.engines.AddJob(idx, s.accountLoad)
	s.engines.AddPending(eng, job)
	s.destinations[job.MsgID] = eng

	s.monitor.RecordEvent(&MonitorEvent{
		Topic:     "task_destination",
		MsgID:     job.MsgID,
		Engine:    eng,
		Timestamp: time.Now(),
	})
	s.sendDispatch(Dispatch{MsgID: job.MsgID, Engine: eng, Payload: job.Payload})
}

func (s *Scheduler) sendDispatch(d Dispatch) {
	select {
	case s.dispatchOut <- d:
	default:
		log.Printf("scheduler: dispatch channel full, dropping dispatch of %s to %s", d.MsgID, d.Engine)
	}
}

func (s *Scheduler) sendReply(r Reply) {
	select {
	case s.replyOut <- r:
	default:
		log.Printf("scheduler: reply channel full, dropping reply for %s", r.MsgID)
	}
}

func (s *Scheduler) failUnreachable(msgID MsgID, kind ErrorKind) {
	job, ok := s.queue.Get(msgID)
	if !ok {
		return
	}
	s.queue.Remove(msgID)
	for id := range job.Dependents() {
		s.graph.Remove(MsgID(id), msgID)
	}

	s.sendReply(Reply{
		MsgID:       msgID,
		ClientID:    job.ClientID,
		Success:     false,
		ErrorKind:   kind,
		Err:         errForKind(kind),
		CompletedAt: time.Now(),
	})
	s.monitor.RecordEvent(&MonitorEvent{
		Topic:     "outtask",
		MsgID:     msgID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"status": "error", "kind": string(kind)},
	})

	s.allDone[string(msgID)] = struct{}{}
	s.allFailed[string(msgID)] = struct{}{}
	delete(s.retries, msgID)

	s.updateGraph(&msgID)
}

// dispatchResult is the entry point for every engine-originated outcome,
// including scheduler-synthesized ones (stranded task, engine error).
// Grounded on task_scheduler.py's dispatch_result; see DESIGN.md's first
// Open Question for why only the real-failure-with-retries branch touches
// the retry counter even though both branches call handleUnmetDependency.
func (s *Scheduler) dispatchResult(res Result) {
	if idx, ok := s.engines.Index(res.Engine); ok {
		s.engines.FinishJob(idx, s.accountLoad)
	}

	if !res.DependenciesMet {
		s.handleUnmetDependency(res)
		return
	}

	msgID := res.MsgID
	retries := s.retries[msgID]
	if !res.Success && retries > 0 {
		s.retries[msgID] = retries - 1
		s.handleUnmetDependency(res)
		return
	}

	delete(s.retries, msgID)
	s.handleResult(res, res.Success)
	s.monitor.RecordEvent(&MonitorEvent{
		Topic:     "outtask",
		MsgID:     msgID,
		Engine:    res.Engine,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"status": statusString(res.Success)},
	})
}

func statusString(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

func (s *Scheduler) handleResult(res Result, success bool) {
	msgID := res.MsgID
	job, ok := s.engines.PopPending(res.Engine, msgID)
	if !ok {
		return
	}

	reply := Reply{
		MsgID:       msgID,
		ClientID:    job.ClientID,
		Engine:      res.Engine,
		Success:     success,
		Payload:     res.Payload,
		CompletedAt: time.Now(),
	}
	if !success && res.ErrorKind != "" {
		reply.ErrorKind = res.ErrorKind
		reply.Err = errForKind(res.ErrorKind)
	}
	s.sendReply(reply)

	if success {
		s.engines.MarkCompleted(res.Engine, msgID)
		s.allCompleted[string(msgID)] = struct{}{}
	} else {
		s.engines.MarkFailed(res.Engine, msgID)
		s.allFailed[string(msgID)] = struct{}{}
	}
	s.allDone[string(msgID)] = struct{}{}
	s.destinations[msgID] = res.Engine

	s.updateGraph(&msgID)
}

// handleUnmetDependency resubmits a job that an engine refused to run (or
// that failed with retries remaining) onto a different engine, extending
// its blacklist. Grounded on task_scheduler.py's handle_unmet_dependency.
func (s *Scheduler) handleUnmetDependency(res Result) {
	job, ok := s.engines.PopPending(res.Engine, res.MsgID)
	if !ok {
		return
	}
	job.Blacklist[string(res.Engine)] = struct{}{}

	if len(job.Targets) > 0 && setsEqual(job.Blacklist, job.Targets) {
		s.queue.Put(job)
		s.failUnreachable(res.MsgID, KindImpossibleDependency)
	} else if !s.maybeRun(job) {
		if !s.allFailed.Contains(string(res.MsgID)) {
			s.saveUnmet(job)
		}
	}

	if s.cfg.HWM > 0 {
		if idx, ok := s.engines.Index(res.Engine); ok {
			loads := s.engines.Loads()
			if loads[idx] == s.cfg.HWM-1 {
				s.updateGraph(nil)
			}
		}
	}
}

func setsEqual(a, b dependency.Set) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b.Contains(id) {
			return false
		}
	}
	return true
}

// updateGraph re-evaluates waiting jobs after depID finishes (or, when
// depID is nil, rescans the whole waiting queue — used on engine
// registration and when an HWM slot just freed up). Grounded on
// task_scheduler.py's update_graph, including its full-scan-vs-targeted-
// scan distinction and the FIFO-preserving restore of jobs popped off the
// real queue but found not yet runnable (DESIGN.md Open Question 2 does
// not apply here; this one is the ordinary early-break restore path).
func (s *Scheduler) updateGraph(depID *MsgID) {
	// The finished dep's reverse-graph entry is dead either way: pop it up
	// front so a scan promoted to full-rescan mode doesn't leave it behind.
	var waiters map[MsgID]struct{}
	if depID != nil {
		waiters = s.graph.Pop(*depID)
	}

	fullScan := depID == nil
	if !fullScan && s.cfg.HWM > 0 {
		for _, l := range s.engines.Loads() {
			if l == s.cfg.HWM-1 {
				fullScan = true
				break
			}
		}
	}

	if fullScan {
		s.updateGraphFullScan()
		return
	}
	s.updateGraphTargeted(waiters)
}

func (s *Scheduler) updateGraphFullScan() {
	var restore []*Job
	for {
		job := s.queue.PopFront()
		if job == nil {
			break
		}
		if job.After.Unreachable(s.allCompleted, s.allFailed) || job.Follow.Unreachable(s.allCompleted, s.allFailed) {
			s.failUnreachable(job.MsgID, KindImpossibleDependency)
			continue
		}
		if job.After.Met(s.allCompleted, s.allFailed) {
			if s.maybeRun(job) {
				s.queue.Remove(job.MsgID)
				for id := range job.Dependents() {
					s.graph.Remove(MsgID(id), job.MsgID)
				}
				if len(s.availableEngines()) == 0 {
					break
				}
				continue
			}
			restore = append(restore, job)
			continue
		}
		restore = append(restore, job)
	}
	s.queue.PushFrontAll(restore)
}

func (s *Scheduler) updateGraphTargeted(waiters map[MsgID]struct{}) {
	if len(waiters) == 0 {
		return
	}
	candidates := make([]*Job, 0, len(waiters))
	for msgID := range waiters {
		if job, ok := s.queue.Get(msgID); ok {
			candidates = append(candidates, job)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Submitted.Before(candidates[j].Submitted)
	})

	for _, job := range candidates {
		if job.Removed {
			continue
		}
		if job.After.Unreachable(s.allCompleted, s.allFailed) || job.Follow.Unreachable(s.allCompleted, s.allFailed) {
			s.failUnreachable(job.MsgID, KindImpossibleDependency)
			continue
		}
		if !job.After.Met(s.allCompleted, s.allFailed) {
			continue
		}
		if s.maybeRun(job) {
			s.queue.Remove(job.MsgID)
			for id := range job.Dependents() {
				s.graph.Remove(MsgID(id), job.MsgID)
			}
			if len(s.availableEngines()) == 0 {
				break
			}
		}
	}
}

func (s *Scheduler) registerEngine(id EngineID) {
	s.engines.Register(id)
	s.affinity.AddEngine(id)
	s.updateGraph(nil)
}

func (s *Scheduler) unregisterEngine(id EngineID) {
	if !s.engines.Unregister(id) {
		return
	}
	s.affinity.RemoveEngine(id)

	if s.engines.PendingCount(id) > 0 {
		s.closeWg.Add(1)
		go func() {
			defer s.closeWg.Done()
			timer := time.NewTimer(5 * time.Second)
			defer timer.Stop()
			select {
			case <-timer.C:
				select {
				case s.strandedFire <- id:
				case <-s.done:
				}
			case <-s.done:
			}
		}()
		return
	}
	s.engines.DropEngineMaps(id)
}

func (s *Scheduler) handleStrandedTasks(id EngineID) {
	lost := s.engines.PendingSnapshot(id)
	for msgID := range lost {
		s.dispatchResult(Result{
			MsgID:           msgID,
			Engine:          id,
			Success:         false,
			DependenciesMet: true,
			ErrorKind:       KindEngineError,
		})
	}
	s.engines.DropEngineMaps(id)
}
