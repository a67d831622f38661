// Package hub implements the Front Door (spec §4.4): the four
// session-scoped operations — ListTools, CallTool, EndSession,
// ExecuteCommand — sequenced through the Task Detector, Loading Planner,
// and Router & Client Supervisor, plus the admin hub_status operation.
package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/tsphub/internal/catalog"
	"github.com/nextlevelbuilder/tsphub/internal/config"
	"github.com/nextlevelbuilder/tsphub/internal/detector"
	"github.com/nextlevelbuilder/tsphub/internal/mcp"
	"github.com/nextlevelbuilder/tsphub/internal/planner"
	"github.com/nextlevelbuilder/tsphub/internal/sessions"
	"github.com/nextlevelbuilder/tsphub/internal/telemetry"
	"github.com/nextlevelbuilder/tsphub/internal/tools"
)

// Hub wires the Category Map, Task Detector, Loading Planner, Router,
// and Session Manager into the four Front Door operations.
type Hub struct {
	cfg      *config.Config
	catalog  *catalog.Map
	detector *detector.Detector
	planner  *planner.Planner
	router   *mcp.Router
	sessions *sessions.Manager
}

// New builds a Hub over already-constructed components — cmd/ owns
// wiring the concrete Config/Clients/etc. together and passing them in.
func New(cfg *config.Config, cat *catalog.Map, det *detector.Detector, pl *planner.Planner, router *mcp.Router, sess *sessions.Manager) *Hub {
	return &Hub{cfg: cfg, catalog: cat, detector: det, planner: pl, router: router, sessions: sess}
}

// ListToolsResult is returned by ListTools: the materialized descriptor
// list plus the decision summary that produced it — spec §4.4 "Returns
// the descriptor list plus a decision summary."
type ListToolsResult struct {
	Tools    []catalog.ToolDescriptor
	Decision *planner.LoadDecision
}

// ListTools is spec §4.4's first operation: find-or-create the session,
// run the detector (or consult its cache), run the planner, and
// materialize the resulting ToolDescriptor list.
func (h *Hub) ListTools(ctx context.Context, sessionID, userID, query string, qctx detector.Context) (*ListToolsResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.cfg.ListToolsTimeoutMS)*time.Millisecond)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "hub.ListTools")
	defer span.End()

	s := h.sessions.GetOrCreate(sessionID, userID)

	// HUB_FILTERING=false bypasses the Detector/Planner entirely and
	// returns the full catalog — spec §6's filtering toggle, with the
	// decision's FallbackReason set to "filtering_disabled".
	if !h.cfg.Filtering {
		all := h.catalog.All()
		decision := fullCatalogDecision(all)
		s.RecordTurn(query, map[catalog.Category]bool{}, decision)
		return &ListToolsResult{Tools: all, Decision: decision}, nil
	}

	history := toDetectorHistory(s.History())

	detCtx, cancel := context.WithTimeout(ctx, time.Duration(h.cfg.DetectionTimeoutMS)*time.Millisecond)
	detSpanCtx, detSpan := telemetry.StartSpan(detCtx, "detector.Detect")
	det := h.detector.Detect(detSpanCtx, query, qctx, history)
	detSpan.End()
	cancel()

	strategy, overrides := s.Snapshot()

	_, planSpan := telemetry.StartSpan(ctx, "planner.Plan")
	decision := h.planner.Plan(query, det, strategy, overrides)
	planSpan.End()

	descriptors := make([]catalog.ToolDescriptor, 0, len(decision.Tools))
	for id := range decision.Tools {
		if td, ok := h.catalog.Get(id); ok {
			descriptors = append(descriptors, td)
		}
	}

	s.RecordTurn(query, det.Categories, decision)

	if h.cfg.Cache {
		slog.Debug("hub.list_tools", "session", sessionID, "fallback", det.FallbackTag, "tools", len(descriptors))
	}

	return &ListToolsResult{Tools: descriptors, Decision: decision}, nil
}

func fullCatalogDecision(all []catalog.ToolDescriptor) *planner.LoadDecision {
	ids := make(map[catalog.ToolID]bool, len(all))
	tiers := make(map[catalog.Tier]map[catalog.ToolID]bool)
	tokens := 0
	for _, td := range all {
		ids[td.ID] = true
		if tiers[td.Tier] == nil {
			tiers[td.Tier] = make(map[catalog.ToolID]bool)
		}
		tiers[td.Tier][td.ID] = true
		tokens += td.TokenCost
	}
	return &planner.LoadDecision{
		Tools:           ids,
		TierBreakdown:   tiers,
		EstimatedTokens: tokens,
		ConfidenceMean:  1.0,
		Strategy:        planner.StrategyAggressive,
		FallbackReason:  "filtering_disabled",
	}
}

func toDetectorHistory(h []sessions.HistoryEntry) []detector.HistoryEntry {
	out := make([]detector.HistoryEntry, len(h))
	for i, e := range h {
		out[i] = detector.HistoryEntry{Query: e.Query, Categories: e.Categories}
	}
	return out
}

// CallTool is spec §4.4's second operation: record intended use, dispatch
// via the Router, and update session metrics on success or failure.
func (h *Hub) CallTool(ctx context.Context, sessionID string, id catalog.ToolID, args map[string]any) (*tools.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "router.CallTool")
	defer span.End()

	s, ok := h.sessions.Get(sessionID)
	if !ok {
		s = h.sessions.GetOrCreate(sessionID, "")
	}

	result, rerr := h.router.CallTool(ctx, id, args)
	if rerr != nil {
		s.RecordCall(string(id), rerr)
		return nil, rerr
	}
	s.RecordCall(string(id), nil)
	return result, nil
}

// EndSessionSummary is returned by EndSession for the caller to log or
// surface — spec §4.4 "compute token-reduction metric ... emit summary."
type EndSessionSummary struct {
	SessionID      string
	TokenReduction float64
	Metrics        sessions.Metrics
}

// EndSession is spec §4.4's third operation: compute the token-reduction
// metric and drop the session's state.
func (h *Hub) EndSession(sessionID string) (*EndSessionSummary, bool) {
	s, ok := h.sessions.End(sessionID)
	if !ok {
		return nil, false
	}
	return &EndSessionSummary{
		SessionID:      sessionID,
		TokenReduction: s.TokenReduction(),
		Metrics:        s.Metrics,
	}, true
}

// ExecuteCommand is spec §4.4's fourth operation: parse the command
// grammar, update sticky overrides, and return nothing further — the
// caller's next ListTools re-runs planning against the updated overrides.
func (h *Hub) ExecuteCommand(sessionID, cmd string) error {
	s, ok := h.sessions.Get(sessionID)
	if !ok {
		return nil
	}
	return s.ExecuteCommand(cmd)
}

// Status reports the admin hub_status operation from spec §6: every
// back-end Client's lifecycle state and the current live session count.
type Status struct {
	Servers      []mcp.ServerStatus
	LiveSessions int
	ToolCount    int
}

func (h *Hub) Status() Status {
	return Status{
		Servers:      h.router.Status(),
		LiveSessions: h.sessions.Count(),
		ToolCount:    len(h.catalog.All()),
	}
}
