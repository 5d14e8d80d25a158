package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/voicebridge-gateway/internal/callsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/configsvc"
	"github.com/hubenschmidt/voicebridge-gateway/internal/gpuclient"
	"github.com/hubenschmidt/voicebridge-gateway/internal/llmsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/metrics"
	"github.com/hubenschmidt/voicebridge-gateway/internal/pipeline"
	"github.com/hubenschmidt/voicebridge-gateway/internal/telephony"
	"github.com/hubenschmidt/voicebridge-gateway/internal/tools"
)

// deps bundles every shared dependency the HTTP handlers need, built once
// in main and threaded through registerRoutes.
type deps struct {
	cfg       config
	tuning    tuning
	gpu       *gpuclient.Client
	configSvc *configsvc.Client
	registry  *callsession.Registry
}

func registerRoutes(mux *http.ServeMux, d *deps) {
	handler := &telephony.Handler{
		Resolver:           d.configSvc,
		StatusSink:         d.configSvc,
		Bootstrapper:       d,
		PublicWSBase:       d.cfg.publicWSBase,
		StreamPathPrefix:   d.cfg.streamPathPrefix,
		ValidateSignatures: d.cfg.validateSignatures,
	}

	mux.HandleFunc("POST "+d.cfg.incomingPath, handler.HandleIncoming)
	mux.HandleFunc("POST "+d.cfg.statusPath, handler.HandleStatus)
	mux.HandleFunc("GET "+d.cfg.streamPathPrefix+"/{call_sid}", handler.HandleStream)

	mux.HandleFunc("GET /healthz", d.handleHealth)
	mux.HandleFunc("GET /calls/active", d.handleActiveCalls)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (d *deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "active_calls": d.registry.Count()})
}

func (d *deps) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"call_ids": d.registry.Names()})
}

// Bootstrap implements telephony.CallBootstrapper. It fetches the full
// assistant configuration, builds the session, the realtime LLM
// connection, the tool engine, and the pipeline, then runs the call to
// completion on the calling goroutine — the audio WebSocket's read loop
// owns the call for its entire lifetime, per the one-goroutine-per-call
// concurrency model.
func (d *deps) Bootstrap(ctx context.Context, callSID string, conn *websocket.Conn) {
	defer conn.Close()

	if d.registry.Count() >= d.cfg.maxConcurrentCalls {
		slog.Warn("call rejected at capacity", "call_id", callSID, "active_calls", d.registry.Count())
		return
	}

	fullCfg, err := d.configSvc.GetConfig(ctx, callSID)
	if err != nil {
		slog.Error("fetch call config", "call_id", callSID, "error", err)
		return
	}

	defaultSilence := time.Duration(d.tuning.DefaultSilenceSec) * time.Second
	defaultMaxCall := time.Duration(d.tuning.DefaultMaxCallMin) * time.Minute
	sess := callsession.NewSession(callSID, uuid.NewString(), fullCfg.ToSessionConfig(defaultSilence, defaultMaxCall), callsession.Credentials{
		AccountSID: fullCfg.TwilioAccountSID,
		AuthToken:  fullCfg.TwilioAuthToken,
	})
	d.registry.Add(sess)
	defer d.registry.Remove(callSID)

	metrics.CallsTotal.Inc()
	metrics.CallsActive.Inc()
	defer metrics.CallsActive.Dec()

	toolEng := tools.New(sess.Cfg.Tools)

	// The audio WebSocket's message handler must be registered — i.e. frame
	// reads must begin — before the LLM connect starts, since `start`/`media`
	// events can arrive while the LLM handshake (up to 15s) is still
	// outstanding. The pipeline is built with a nil llm and its own
	// HandleMediaFrame queues frames until Ready runs (see pipeline.New).
	adapter := telephony.NewCallAdapter(conn, fullCfg.TwilioAccountSID, fullCfg.TwilioAuthToken, callSID)
	p := pipeline.New(sess, d.gpu, nil, toolEng, adapter, d.configSvc, d.cfg.summarizerAPIKey)

	sess.SetStatus(callsession.StatusActive)

	streamDone := make(chan error, 1)
	go func() {
		streamDone <- adapter.Run(ctx, &adapterHandler{p: p, sess: sess})
	}()

	llm, err := llmsession.Connect(ctx, d.cfg.llmRealtimeURL, d.cfg.summarizerAPIKey, llmsession.SessionConfig{
		SystemPrompt: sess.Cfg.SystemPrompt,
		Language:     sess.Cfg.LanguageCode,
		Tools:        toolEng.Descriptors(),
	})
	if err != nil {
		slog.Error("connect llm session", "call_id", callSID, "error", err)
		p.Cleanup(ctx, "llm_connect_failed")
		<-streamDone
		return
	}
	defer llm.Close()

	p.AttachLLM(llm)
	p.Ready(ctx)

	go p.RunLLMEvents(ctx)
	go p.RunVADResults(ctx)
	go p.RunTurnSTT(ctx)

	if err := <-streamDone; err != nil {
		slog.Info("call stream ended", "call_id", callSID, "error", err)
	}

	p.Cleanup(ctx, "caller_hangup")
}

// adapterHandler satisfies telephony.MessageHandler, bridging the adapter's
// decoded events to the pipeline and the session's StreamSID field.
type adapterHandler struct {
	p    *pipeline.Pipeline
	sess *callsession.Session
}

func (h *adapterHandler) HandleStart(streamSID string) {
	h.sess.StreamSID = streamSID
}

func (h *adapterHandler) HandleMediaFrame(ctx context.Context, ulawFrame []byte) error {
	return h.p.HandleMediaFrame(ctx, ulawFrame)
}

func (h *adapterHandler) HandleMarkEcho(name string) {
	h.p.HandleMarkEcho(name)
}
