// Package graph names the boundary to the execution pipeline that turns a chat
// message into an answer. The pipeline itself is opaque to the chat core; only
// load/execute and the optional streaming capability are part of the contract.
package graph

import (
	"context"

	"github.com/go-go-golems/flowchat/pkg/artifact"
)

// Handle is an opaque, loaded execution graph ready to run.
type Handle interface{}

// Result is what one execution produces: the answer text plus the
// intermediate reasoning steps, both free-form.
type Result struct {
	Text              string
	IntermediateSteps string
}

// Runner loads (or rebuilds) an execution graph from request configuration and
// runs it. isFirstMessage tells the runner whether it may reuse a previously
// built graph for the session.
type Runner interface {
	LoadOrBuild(ctx context.Context, config map[string]any, isFirstMessage bool) (Handle, error)
	Execute(ctx context.Context, h Handle, message string) (Result, error)
}

// TokenSink receives incremental tokens while a graph is executing.
type TokenSink interface {
	EmitToken(ctx context.Context, token string) error
}

// StreamingCapable is implemented by graph handles that can stream tokens.
// Streaming is decided by this capability check at attach time, never by
// inspecting the concrete model type.
type StreamingCapable interface {
	SetTokenSink(sink TokenSink)
}

// ArtifactSink receives artifacts computed as side effects of an execution.
// The sink is bound to the owning session by whoever attaches it, so producers
// never name a session id.
type ArtifactSink interface {
	StoreArtifact(rec artifact.Record)
}

// ArtifactCapable is implemented by graph handles whose execution can produce
// artifacts. The sink is attached per request, before Execute.
type ArtifactCapable interface {
	SetArtifactSink(sink ArtifactSink)
}
