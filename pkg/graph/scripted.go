package graph

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/flowchat/pkg/artifact"
)

var errInvalidHandle = errors.New("handle was not produced by this runner")

// scriptedHandle is a loaded graph whose behavior is fixed up front. It
// supports token streaming and artifact production so the full delivery path
// can run without a model provider behind it.
type scriptedHandle struct {
	runner *ScriptedRunner
	mu     sync.Mutex
	sink   TokenSink
	arts   ArtifactSink
}

var (
	_ StreamingCapable = &scriptedHandle{}
	_ ArtifactCapable  = &scriptedHandle{}
)

func (h *scriptedHandle) SetTokenSink(sink TokenSink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

func (h *scriptedHandle) SetArtifactSink(sink ArtifactSink) {
	h.mu.Lock()
	h.arts = sink
	h.mu.Unlock()
}

// Turn scripts a single execution: the tokens streamed while running, any
// artifacts published as side effects, and the final result or error.
type Turn struct {
	Tokens    []string
	Artifacts []artifact.Record
	Result    Result
	Err       error
}

// ScriptedRunner replays pre-arranged turns in order. When the script runs
// out it echoes the incoming message. A turn's artifacts go to the handle's
// attached artifact sink mid-execution, mirroring a graph that computes tables
// or images as side effects.
type ScriptedRunner struct {
	mu         sync.Mutex
	turns      []Turn
	next       int
	builds     int
	firstFlags []bool
}

var _ Runner = &ScriptedRunner{}

func NewScriptedRunner(turns ...Turn) *ScriptedRunner {
	return &ScriptedRunner{turns: turns}
}

func (r *ScriptedRunner) LoadOrBuild(_ context.Context, _ map[string]any, isFirstMessage bool) (Handle, error) {
	r.mu.Lock()
	r.builds++
	r.firstFlags = append(r.firstFlags, isFirstMessage)
	r.mu.Unlock()
	return &scriptedHandle{runner: r}, nil
}

func (r *ScriptedRunner) Execute(ctx context.Context, h Handle, message string) (Result, error) {
	sh, ok := h.(*scriptedHandle)
	if !ok || sh == nil || sh.runner != r {
		return Result{}, errInvalidHandle
	}

	r.mu.Lock()
	var turn Turn
	if r.next < len(r.turns) {
		turn = r.turns[r.next]
		r.next++
	} else {
		turn = Turn{Result: Result{Text: "you said: " + message}}
	}
	r.mu.Unlock()

	sh.mu.Lock()
	sink := sh.sink
	arts := sh.arts
	sh.mu.Unlock()
	if sink != nil {
		tokens := turn.Tokens
		if tokens == nil && turn.Err == nil {
			tokens = strings.Fields(turn.Result.Text)
		}
		for _, tok := range tokens {
			if err := sink.EmitToken(ctx, tok); err != nil {
				return Result{}, err
			}
		}
	}

	if arts != nil {
		for _, rec := range turn.Artifacts {
			arts.StoreArtifact(rec)
		}
	}

	if turn.Err != nil {
		return Result{}, turn.Err
	}
	return turn.Result, nil
}

// Builds reports how many times a graph was loaded or built.
func (r *ScriptedRunner) Builds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.builds
}

// FirstFlags returns the isFirstMessage flag observed per build.
func (r *ScriptedRunner) FirstFlags() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.firstFlags...)
}
