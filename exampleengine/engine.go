// Package exampleengine provides a minimal simulated compute engine for
// integration-testing the scheduler. spec.md §1 treats the engine-side
// execution runtime as an external collaborator, so this package is test
// scaffolding rather than a production runtime: it receives
// scheduler.Dispatch values over a channel and executes the dispatched
// payload as a Lua script, replying with a scheduler.Result. Adapted from
// dagengine/lua_executor.go's LuaExecutor.
package exampleengine

import (
	"context"
	"fmt"
	"log"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/gbasilveira/taskscheduler/scheduler"
)

// Engine simulates one compute engine. It pulls dispatches off In, runs
// each payload as a Lua script, and pushes the outcome to Out. Capacity
// bounds how many scripts it runs concurrently, modeling a real engine's
// own local concurrency limit independent of the scheduler's HWM.
type Engine struct {
	ID       scheduler.EngineID
	Capacity int

	In  chan scheduler.Dispatch
	Out chan scheduler.Result

	sem chan struct{}
}

// New creates an Engine with the given id and concurrency capacity.
func New(id scheduler.EngineID, capacity int) *Engine {
	if capacity <= 0 {
		capacity = 1
	}
	return &Engine{
		ID:       id,
		Capacity: capacity,
		In:       make(chan scheduler.Dispatch, 64),
		Out:      make(chan scheduler.Result, 64),
		sem:      make(chan struct{}, capacity),
	}
}

// Run processes dispatches until ctx is canceled. Each dispatch is
// executed in its own goroutine (bounded by Capacity) so a slow script
// does not stall the engine's other outstanding work.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-e.In:
			select {
			case e.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go e.execute(ctx, d)
		}
	}
}

func (e *Engine) execute(ctx context.Context, d scheduler.Dispatch) {
	defer func() { <-e.sem }()

	result := e.runScript(ctx, d)
	select {
	case e.Out <- result:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("exampleengine %s: dropping result for %s, Out channel full", e.ID, d.MsgID)
	}
}

// runScript executes d.Payload as a Lua script. A script may set the
// global `dependencies_met` to false to simulate the engine-side follow
// refusal spec.md §4.7 describes. A script that raises a Lua error fails;
// one that runs cleanly succeeds unless it sets the global `success` to
// false. The global `output`, if set, becomes the result payload.
func (e *Engine) runScript(_ context.Context, d scheduler.Dispatch) scheduler.Result {
	L := lua.NewState()
	defer L.Close()

	L.SetGlobal("engine_id", lua.LString(string(e.ID)))
	L.SetGlobal("msg_id", lua.LString(string(d.MsgID)))

	if err := L.DoString(string(d.Payload)); err != nil {
		return scheduler.Result{
			MsgID:           d.MsgID,
			Engine:          e.ID,
			Success:         false,
			DependenciesMet: true,
			Payload:         []byte(fmt.Sprintf("lua execution error: %v", err)),
		}
	}

	depsMet := true
	if v := L.GetGlobal("dependencies_met"); v != lua.LNil {
		if b, ok := v.(lua.LBool); ok {
			depsMet = bool(b)
		}
	}

	success := true
	if v := L.GetGlobal("success"); v != lua.LNil {
		if b, ok := v.(lua.LBool); ok {
			success = bool(b)
		}
	}

	var payload []byte
	if v := L.GetGlobal("output"); v != lua.LNil {
		payload = []byte(lua.LVAsString(v))
	}

	return scheduler.Result{
		MsgID:           d.MsgID,
		Engine:          e.ID,
		Success:         success,
		DependenciesMet: depsMet,
		Payload:         payload,
	}
}
