// Package talentmesh provides a high-level façade over the HR agent core:
// the capability registry, intent router, workflow engine, retrieval engine,
// external gateway and session store, wired together behind one constructor.
// Most applications interact with this package by:
//  1. Creating a TalentMesh via New() (optionally overriding the model,
//     stores and tuning)
//  2. Registering extra capabilities, workflows and gateway services
//  3. Serving turns via HandleTurn or mounting Handler() behind an HTTP
//     server
//
// All defaults are safe for local development and testing: an in-memory
// session store, an in-memory workflow instance store, a deterministic mock
// model and a hashing embedder. Production deployments supply a real model
// adapter, a Redis session store and a structured logger.
package talentmesh

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/talentmesh/talentmesh/agent"
	"github.com/talentmesh/talentmesh/capability"
	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/httpapi"
	"github.com/talentmesh/talentmesh/logging"
	"github.com/talentmesh/talentmesh/model"
	"github.com/talentmesh/talentmesh/orchestrator"
	"github.com/talentmesh/talentmesh/retrieval"
	"github.com/talentmesh/talentmesh/router"
	"github.com/talentmesh/talentmesh/session"
	"github.com/talentmesh/talentmesh/workflow"
)

// Options configures a TalentMesh instance.
type Options struct {
	// Model answers informational capabilities and classifies intents.
	// Defaults to a deterministic mock, which is only useful for tests and
	// demos.
	Model model.Model
	// Embedder, when the model adapter supports embeddings, is exposed
	// through the gateway's embed operation and backs the retrieval index.
	// Optional.
	Embedder model.Embedder
	// RetrievalEmbedder vectorizes the document corpus. When nil, the index
	// uses the gateway's embed operation if Embedder is set, otherwise the
	// deterministic hashing embedder.
	RetrievalEmbedder retrieval.Embedder
	// EmbeddingDimensions is the vector width Embedder produces. Only
	// consulted when the index runs over the gateway embedder; defaults to
	// retrieval.DefaultDimensions.
	EmbeddingDimensions int

	// SessionStore defaults to in-memory. Use session.NewRedisStore for a
	// durable deployment.
	SessionStore core.SessionStore
	// InstanceStore defaults to in-memory.
	InstanceStore workflow.InstanceStore

	// Builtins registers the built-in HR capability set and workflow
	// definitions. Defaults to true.
	Builtins bool
	// Rules are keyword routing rules evaluated before the classifier.
	Rules []router.Rule
	// RouterThreshold overrides the classification confidence threshold.
	RouterThreshold float64
	// Retry tunes the gateway's backoff loop.
	Retry gateway.RetryConfig
	// GroundingTopK bounds retrieval grounding per turn.
	GroundingTopK int
	// TurnTimeout caps one conversational turn end to end.
	TurnTimeout time.Duration

	// Metrics enables Prometheus instrumentation. Defaults to true with a
	// private registry, exposed at /metrics on Handler().
	Metrics bool
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// TalentMesh aggregates the wired components. Accessors expose the
// underlying pieces for applications that need to reach past the façade.
type TalentMesh struct {
	registry *capability.Registry
	engine   *workflow.Engine
	gw       *gateway.Gateway
	handlers *agent.Mux
	index    *retrieval.Index
	orch     *orchestrator.Orchestrator
	metrics  *prometheus.Registry
	logger   logging.Logger
	mdl      model.Model
}

// New wires a TalentMesh instance with optional overrides.
func New(optFns ...func(o *Options)) (*TalentMesh, error) {
	opts := Options{
		Model:         model.NewMockModel("local"),
		SessionStore:  session.NewInMemoryStore(),
		InstanceStore: workflow.NewInMemoryInstanceStore(),
		Builtins:      true,
		Retry:         gateway.DefaultRetryConfig(),
		Metrics:       true,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	var (
		metricsReg  *prometheus.Registry
		orchMetrics *orchestrator.Metrics
	)
	if opts.Metrics {
		metricsReg = prometheus.NewRegistry()
		orchMetrics = orchestrator.NewMetrics(metricsReg)
	}

	gw := gateway.New(func(o *gateway.Options) {
		o.Retry = opts.Retry
		o.Logger = opts.Logger
		if orchMetrics != nil {
			o.OnRetry = orchMetrics.ObserveGatewayRetry
		}
	})
	gw.RegisterService(agent.NewLLMService(opts.Model, opts.Embedder))

	// Corpus vectors come from the model's embeddings when available, so
	// they share the gateway's retry and backoff behavior.
	if opts.RetrievalEmbedder == nil {
		if opts.Embedder != nil {
			opts.RetrievalEmbedder = retrieval.NewGatewayEmbedder(gw, agent.LLMServiceName, "embed", opts.EmbeddingDimensions)
		} else {
			opts.RetrievalEmbedder = retrieval.NewHashingEmbedder(retrieval.DefaultDimensions)
		}
	}

	registry := capability.NewRegistry()
	engine := workflow.New(func(o *workflow.Options) {
		o.Store = opts.InstanceStore
		o.Logger = opts.Logger
	})
	handlers := agent.NewMux()

	if opts.Builtins {
		if err := agent.RegisterBuiltins(registry, engine, gw); err != nil {
			return nil, err
		}
		// Informational builtins answer through the model.
		for _, desc := range registry.All() {
			if desc.Workflow != "" {
				continue
			}
			prompt := desc.SystemPrompt
			handlers.Register(desc.ID, agent.NewModelHandler(opts.Model, func(o *agent.ModelHandlerOptions) {
				o.SystemPrompt = prompt
				o.Logger = opts.Logger
			}))
		}
	}

	index := retrieval.NewIndex(opts.RetrievalEmbedder)
	retriever := retrieval.New(index, func(o *retrieval.Options) {
		o.Logger = opts.Logger
	})

	rt := router.New(registry, gw, func(o *router.Options) {
		o.Rules = opts.Rules
		o.Logger = opts.Logger
		if opts.RouterThreshold > 0 {
			o.Threshold = opts.RouterThreshold
		}
	})

	orch := orchestrator.New(registry, rt, engine, handlers, func(o *orchestrator.Options) {
		o.Sessions = opts.SessionStore
		o.Retriever = retriever
		o.Metrics = orchMetrics
		o.Logger = opts.Logger
		if opts.GroundingTopK > 0 {
			o.GroundingTopK = opts.GroundingTopK
		}
		if opts.TurnTimeout > 0 {
			o.TurnTimeout = opts.TurnTimeout
		}
	})

	return &TalentMesh{
		registry: registry,
		engine:   engine,
		gw:       gw,
		handlers: handlers,
		index:    index,
		orch:     orch,
		metrics:  metricsReg,
		logger:   opts.Logger,
		mdl:      opts.Model,
	}, nil
}

// RegisterCapability registers a capability descriptor and, for
// informational capabilities, its handler. A nil handler defaults to a model
// handler driven by the descriptor's system prompt.
func (m *TalentMesh) RegisterCapability(desc core.CapabilityDescriptor, h agent.Handler) error {
	if err := m.registry.Register(desc); err != nil {
		return err
	}
	if desc.Workflow != "" {
		return nil
	}
	if h == nil {
		prompt := desc.SystemPrompt
		h = agent.NewModelHandler(m.mdl, func(o *agent.ModelHandlerOptions) {
			o.SystemPrompt = prompt
			o.Logger = m.logger
		})
	}
	m.handlers.Register(desc.ID, h)
	return nil
}

// RegisterWorkflow registers a workflow definition.
func (m *TalentMesh) RegisterWorkflow(def *workflow.Definition) error {
	return m.engine.RegisterDefinition(def)
}

// RegisterService registers a downstream service on the gateway.
func (m *TalentMesh) RegisterService(s gateway.Service) {
	m.gw.RegisterService(s)
}

// IngestDocuments adds documents to the retrieval corpus and returns the new
// immutable corpus version.
func (m *TalentMesh) IngestDocuments(ctx context.Context, docs []retrieval.Document) (string, error) {
	return m.index.Ingest(ctx, docs)
}

// HandleTurn processes one conversational turn.
func (m *TalentMesh) HandleTurn(ctx context.Context, participantID, text string) (*core.Response, error) {
	return m.orch.HandleTurn(ctx, participantID, text)
}

// SubmitIntent routes one message for an existing session.
func (m *TalentMesh) SubmitIntent(ctx context.Context, sessionID, text string) (*orchestrator.IntentResult, error) {
	return m.orch.SubmitIntent(ctx, sessionID, text)
}

// AdvanceWorkflow applies one event to a workflow instance.
func (m *TalentMesh) AdvanceWorkflow(ctx context.Context, instanceID, event string, payload map[string]any) (core.InstanceSummary, error) {
	return m.orch.AdvanceWorkflow(ctx, instanceID, event, payload)
}

// PostExternalEvent is the webhook entry point for external systems.
func (m *TalentMesh) PostExternalEvent(ctx context.Context, instanceID, event string, payload map[string]any) (core.InstanceSummary, error) {
	return m.orch.PostExternalEvent(ctx, instanceID, event, payload)
}

// CancelWorkflow cancels a workflow instance.
func (m *TalentMesh) CancelWorkflow(ctx context.Context, instanceID, reason string) (core.InstanceSummary, error) {
	return m.orch.CancelWorkflow(ctx, instanceID, reason)
}

// QueryAgent invokes one capability directly, bypassing routing.
func (m *TalentMesh) QueryAgent(ctx context.Context, capabilityID, message string) (string, error) {
	return m.orch.QueryAgent(ctx, capabilityID, message)
}

// Handler returns the JSON HTTP API over this instance, including /metrics
// when instrumentation is enabled.
func (m *TalentMesh) Handler() http.Handler {
	return httpapi.NewHandler(m.orch, func(o *httpapi.Options) {
		o.Capabilities = m.registry
		o.Logger = m.logger
		if m.metrics != nil {
			o.Metrics = m.metrics
		}
	})
}

// RunSweeper reclaims idle sessions and terminal instances until the context
// is cancelled.
func (m *TalentMesh) RunSweeper(ctx context.Context, interval, sessionIdle, instanceRetention time.Duration) {
	m.orch.RunSweeper(ctx, interval, sessionIdle, instanceRetention)
}

// Registry exposes the capability registry.
func (m *TalentMesh) Registry() *capability.Registry { return m.registry }

// Engine exposes the workflow engine.
func (m *TalentMesh) Engine() *workflow.Engine { return m.engine }

// Gateway exposes the external capability gateway.
func (m *TalentMesh) Gateway() *gateway.Gateway { return m.gw }

// Orchestrator exposes the turn coordinator.
func (m *TalentMesh) Orchestrator() *orchestrator.Orchestrator { return m.orch }
