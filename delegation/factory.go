// Package delegation builds the two agent-invocable actions that move work
// to another agent: transfer hands the conversation off permanently,
// delegate issues a bounded sub-task and returns its result.
//
// An action built from a relation resolves everything else at invoke time:
// scope and conversation metadata come from the calling context, the target
// record from the store, and credentials from the resolver. Internal targets
// are dispatched in-process with no credential resolution; external targets
// get a per-call agent-to-agent client bound to the target's address and
// resolved headers. Every attempted exchange persists exactly one
// conversation message, success or failure. Configuration and credential
// errors surface before the exchange and persist nothing.
package delegation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/weaverun/weave/a2a"
	"github.com/weaverun/weave/conversation"
	"github.com/weaverun/weave/credential"
	"github.com/weaverun/weave/internal/metrics"
	"github.com/weaverun/weave/store"
	"github.com/weaverun/weave/types"
)

// persistTimeout bounds the message write after an exchange whose context
// may already be canceled.
const persistTimeout = 5 * time.Second

const instrumentationName = "github.com/weaverun/weave/delegation"

// Handoff is a transfer action's successful result. The invocation layer
// ends the calling agent's turn when an action returns one; Reply carries
// the target's first response, when it produced one.
type Handoff struct {
	TargetAgentID string `json:"target_agent_id"`
	External      bool   `json:"external"`
	Reply         any    `json:"reply,omitempty"`
}

// ClientBuilder constructs the agent-to-agent client for one external call.
// The default builds an HTTP client; tests substitute fakes.
type ClientBuilder func(cfg *a2a.ClientConfig) a2a.Client

// Factory builds transfer and delegate actions from agent relations.
type Factory struct {
	records   store.RecordStore
	resolver  *credential.Resolver
	dispatch  Dispatcher
	messages  conversation.Store
	newClient ClientBuilder
	cards     a2a.CardCache
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger

	sendTimeout time.Duration
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithDispatcher sets the in-process dispatcher for internal targets.
// Without one, actions against internal targets fail at invoke time.
func WithDispatcher(d Dispatcher) FactoryOption {
	return func(f *Factory) { f.dispatch = d }
}

// WithClientBuilder replaces how per-call agent clients are constructed.
func WithClientBuilder(b ClientBuilder) FactoryOption {
	return func(f *Factory) {
		if b != nil {
			f.newClient = b
		}
	}
}

// WithCardCache shares discovered agent cards across per-call clients.
func WithCardCache(c a2a.CardCache) FactoryOption {
	return func(f *Factory) { f.cards = c }
}

// WithSendTimeout bounds each request of an external exchange.
func WithSendTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.sendTimeout = d
		}
	}
}

// WithMetrics wires delegation counters and latency histograms.
func WithMetrics(c *metrics.Collector) FactoryOption {
	return func(f *Factory) { f.collector = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory creates an action factory. records and messages are required;
// resolver may be nil when no external target carries a credential
// reference.
func NewFactory(records store.RecordStore, resolver *credential.Resolver, messages conversation.Store, opts ...FactoryOption) *Factory {
	f := &Factory{
		records:  records,
		resolver: resolver,
		messages: messages,
		newClient: func(cfg *a2a.ClientConfig) a2a.Client {
			return a2a.NewHTTPClient(cfg)
		},
		tracer: otel.Tracer(instrumentationName),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("component", "delegation_factory"))
	return f
}

// BuildTransferAction returns the action that hands the conversation off to
// the relation's target. The relation must be a transfer edge.
func (f *Factory) BuildTransferAction(rel *types.AgentRelation) (*types.Action, error) {
	return f.buildAction(rel, types.RelationTransfer)
}

// BuildDelegateAction returns the action that sends a sub-task to the
// relation's target and returns its result. The relation must be a
// delegate edge.
func (f *Factory) BuildDelegateAction(rel *types.AgentRelation) (*types.Action, error) {
	return f.buildAction(rel, types.RelationDelegate)
}

func (f *Factory) buildAction(rel *types.AgentRelation, kind types.RelationKind) (*types.Action, error) {
	if rel == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "relation is required")
	}
	if err := rel.Validate(); err != nil {
		return nil, err
	}
	if rel.Kind != kind {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("relation %s is a %s edge, not %s", rel.ID, rel.Kind, kind))
	}

	// The handler outlives this call; bind a copy so later mutation of the
	// caller's relation cannot redirect it.
	bound := *rel
	if rel.TargetInternalID != nil {
		v := *rel.TargetInternalID
		bound.TargetInternalID = &v
	}
	if rel.TargetExternalID != nil {
		v := *rel.TargetExternalID
		bound.TargetExternalID = &v
	}
	targetID := targetAgentID(&bound)

	var description string
	switch kind {
	case types.RelationTransfer:
		description = fmt.Sprintf("Hand the conversation off to agent %s. Your turn ends and the target takes over.", targetID)
	case types.RelationDelegate:
		description = fmt.Sprintf("Send a sub-task to agent %s and wait for its result.", targetID)
	}

	params := types.NewObjectSchema().
		AddProperty("message", types.NewStringSchema().
			WithDescription("The message or task to send to the target agent.")).
		AddRequired("message")

	return &types.Action{
		Name:        string(kind) + "_to_" + targetID,
		Description: description,
		Parameters:  params,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return f.invoke(ctx, &bound, args)
		},
	}, nil
}

func targetAgentID(rel *types.AgentRelation) string {
	if rel.IsExternal() {
		return *rel.TargetExternalID
	}
	if rel.TargetInternalID != nil {
		return *rel.TargetInternalID
	}
	return ""
}

// invoke executes one delegation. Lookup and credential failures return
// before anything is sent; once the exchange is attempted, exactly one
// conversation message records the outcome.
func (f *Factory) invoke(ctx context.Context, rel *types.AgentRelation, args map[string]any) (any, error) {
	start := time.Now()
	targetKind := "internal"
	if rel.IsExternal() {
		targetKind = "external"
	}

	ctx, span := f.tracer.Start(ctx, "delegation."+string(rel.Kind),
		trace.WithAttributes(
			attribute.String("relation.id", rel.ID),
			attribute.String("target.kind", targetKind)))
	defer span.End()

	text, ok := args["message"].(string)
	if !ok || text == "" {
		return nil, f.reject(span, rel, targetKind, start,
			types.NewError(types.ErrInvalidRequest, "message argument is required"))
	}
	convID, ok := types.ConversationID(ctx)
	if !ok {
		return nil, f.reject(span, rel, targetKind, start,
			types.NewError(types.ErrInvalidRequest, "no conversation bound to the calling context"))
	}
	scope := types.ScopeFrom(ctx)

	var (
		targetID string
		reply    any
		callErr  error
	)
	if rel.IsExternal() {
		agent, err := f.records.GetExternalAgent(ctx, scope, *rel.TargetExternalID)
		if err != nil {
			return nil, f.reject(span, rel, targetKind, start, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("external agent %s not found", *rel.TargetExternalID)).WithCause(err))
		}
		headers, err := f.resolver.ResolveHeaders(ctx, agent.StaticHeaders, agent.CredentialRefID)
		if err != nil {
			return nil, f.reject(span, rel, targetKind, start, err)
		}
		targetID = agent.ID
		reply, callErr = f.sendExternal(ctx, agent, headers, rel.SourceAgentID, convID, text)
	} else {
		agent, err := f.records.GetInternalAgent(ctx, scope, *rel.TargetInternalID)
		if err != nil {
			return nil, f.reject(span, rel, targetKind, start, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("internal agent %s not found", *rel.TargetInternalID)).WithCause(err))
		}
		if f.dispatch == nil {
			return nil, f.reject(span, rel, targetKind, start, types.NewError(types.ErrInternalError,
				"no in-process dispatcher configured for internal target "+agent.ID))
		}
		targetID = agent.ID
		reply, callErr = f.dispatch.Dispatch(ctx, agent.ID, text)
		if callErr != nil {
			if _, typed := types.AsError(callErr); !typed {
				callErr = types.NewError(types.ErrInternalError,
					"agent "+agent.ID+" execution failed").WithCause(callErr)
			}
		}
	}

	f.persist(ctx, rel, convID, targetID, targetKind, text, reply, callErr)

	status := "completed"
	if callErr != nil {
		status = "failed"
	}
	span.SetAttributes(
		attribute.String("target.id", targetID),
		attribute.String("delegation.status", status))
	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, "exchange failed")
	}
	if f.collector != nil {
		f.collector.RecordDelegation(string(rel.Kind), targetKind, status, time.Since(start))
	}
	f.log(rel, targetID, targetKind, convID, status, time.Since(start), callErr)

	if callErr != nil {
		return nil, callErr
	}
	if rel.Kind == types.RelationTransfer {
		return &Handoff{
			TargetAgentID: targetID,
			External:      rel.IsExternal(),
			Reply:         reply,
		}, nil
	}
	return reply, nil
}

// sendExternal runs one exchange over a client scoped to this call: the
// target's address and this call's resolved headers, torn down before
// returning. An empty header map is a valid unauthenticated configuration.
func (f *Factory) sendExternal(ctx context.Context, agent *types.ExternalAgent, headers map[string]string, sourceID, convID, text string) (any, error) {
	cfg := a2a.DefaultClientConfig()
	cfg.Headers = headers
	cfg.AgentID = sourceID
	cfg.Cache = f.cards
	if f.sendTimeout > 0 {
		cfg.Timeout = f.sendTimeout
	}

	client := f.newClient(cfg)
	defer client.Close()

	msg := a2a.NewTaskMessage(sourceID, agent.ID, text)
	msg.ConversationID = convID

	reply, err := client.Send(ctx, agent.Address, msg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewTimeoutError("send to agent " + agent.ID).
				WithCause(err).WithDestination(agent.Address)
		}
		return nil, types.NewConnectionError("send to agent "+agent.ID+" failed", err).
			WithDestination(agent.Address)
	}
	if reply.Kind == a2a.MessageKindError {
		return nil, types.NewError(types.ErrInternalError,
			fmt.Sprintf("agent %s returned an error: %s", agent.ID, renderPayload(reply.Payload))).
			WithDestination(agent.Address)
	}
	return reply.Payload, nil
}

// persist writes the single conversation message for this invocation. The
// write runs on its own deadline so an exchange that timed out still leaves
// a record; a failed write is logged, not returned, because the exchange
// outcome already happened.
func (f *Factory) persist(ctx context.Context, rel *types.AgentRelation, convID, targetID, targetKind, text string, reply any, callErr error) {
	msg := &conversation.Message{
		ConversationID: convID,
		FromAgentID:    rel.SourceAgentID,
		ToAgentID:      targetID,
		Kind:           string(rel.Kind),
		Metadata: map[string]string{
			"relation_id": rel.ID,
			"target_kind": targetKind,
		},
	}
	if callErr != nil {
		msg.Content = text
		msg.Status = conversation.MessageStatusFailed
		msg.Error = callErr.Error()
	} else {
		msg.Content = renderPayload(reply)
		msg.Status = conversation.MessageStatusCompleted
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := f.messages.SaveMessage(pctx, msg); err != nil {
		f.logger.Error("delegation message not persisted",
			zap.String("conversation_id", convID),
			zap.String("relation_id", rel.ID),
			zap.Error(err))
	}
}

// reject reports a failure that happened before any exchange was attempted.
// Nothing is persisted; the typed error propagates to the caller.
func (f *Factory) reject(span trace.Span, rel *types.AgentRelation, targetKind string, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected before exchange")
	if f.collector != nil {
		f.collector.RecordDelegation(string(rel.Kind), targetKind, "rejected", time.Since(start))
	}
	f.logger.Warn("delegation rejected",
		zap.String("relation_id", rel.ID),
		zap.String("kind", string(rel.Kind)),
		zap.Error(err))
	return err
}

func (f *Factory) log(rel *types.AgentRelation, targetID, targetKind, convID, status string, elapsed time.Duration, callErr error) {
	fields := []zap.Field{
		zap.String("relation_id", rel.ID),
		zap.String("kind", string(rel.Kind)),
		zap.String("target_id", targetID),
		zap.String("target_kind", targetKind),
		zap.String("conversation_id", convID),
		zap.Duration("elapsed", elapsed),
	}
	if callErr != nil {
		f.logger.Warn("delegation failed", append(fields, zap.Error(callErr))...)
		return
	}
	f.logger.Debug("delegation "+status, fields...)
}

// renderPayload flattens a reply payload into message text. Strings pass
// through; anything else is serialized.
func renderPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
