// Package pipeline is the turn-taking and streaming core: it owns one
// call's incoming audio, drives the server-side VAD and smart-turn/STT
// calls, streams LLM tokens into sentences, and serializes synthesized
// audio back out to the telephony socket.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hubenschmidt/voicebridge-gateway/internal/callsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/gpuclient"
	"github.com/hubenschmidt/voicebridge-gateway/internal/llmsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/metrics"
	"github.com/hubenschmidt/voicebridge-gateway/internal/tools"
)

const (
	frameMs           = 20
	batchMs           = 200
	batchSamples16k   = 16000 * batchMs / 1000 // 3200
	preRollBatches    = 2
	maxSpeechDuration = 20 * time.Second
	minSpeechDuration = 200 * time.Millisecond
	interruptThreshold = 1
	fastInterruptProb  = 0.6
	smartTurnFallback  = 3 * time.Second
)

// TelephonySender is the outbound half of the telephony socket a pipeline
// drives. Implemented by internal/telephony's call adapter; defined here
// (consumer side) so this package never imports telephony.
type TelephonySender interface {
	SendAudioFrame(frame []byte) error
	SendMark(name string) error
	SendClear() error
	UpdateCall(twiml string) error
	Hangup() error
}

// ConfigService is the subset of the configuration-service client the
// pipeline needs for agent-transfer resolution and terminal reporting.
type ConfigService interface {
	ResolveAgentWebhook(ctx context.Context, agentID string) (string, error)
	Complete(ctx context.Context, report CompletionReport) error
}

// CompletionReport is the terminal payload POSTed to the configuration
// service on cleanup.
type CompletionReport struct {
	CallID            string
	Transcript        []callsession.TranscriptEntry
	DurationSeconds    float64
	EndReason          string
	ExtractedVariables map[string]string
}

// Pipeline runs the turn-taking state machine for exactly one call. It is
// not safe for concurrent use — every method is called from the one
// goroutine that owns this call, per the cooperative single-threaded
// scheduling model; the registry, not this struct, is the shared state.
type Pipeline struct {
	sess      *callsession.Session
	gpu       *gpuclient.Client
	llm       *llmsession.Client
	toolEng   *tools.Engine
	telephony TelephonySender
	configSvc ConfigService

	summarizerAPIKey string

	ttsText    sentenceBuffer
	frames     *frameAssembler
	fillers    []string

	// ttsEpoch is bumped by interrupt() so the in-flight synthesis task —
	// already popped off TTSQueue and mid-stream, hence untouched by
	// TTSQueue.Reset — notices on its next read and stops emitting audio for
	// a sentence produced before the interrupt.
	ttsEpoch atomic.Int64

	vadResults chan vadOutcome
	turnDone   chan turnOutcome

	// readyMu guards ready and mediaQueue: the telephony adapter's read-loop
	// goroutine calls HandleMediaFrame concurrently with the bootstrap
	// goroutine's call to Ready once the LLM connect resolves.
	readyMu    sync.Mutex
	mediaQueue [][]byte
	ready      bool

	cleanupOnce atomic.Bool
}

// New builds a pipeline for one call. The session must already be
// registered; New does not touch the registry. llm may be nil at this
// point — the caller is expected to register the telephony message
// handler against this pipeline before the LLM connect finishes, then
// call AttachLLM once it resolves. Nothing in the pipeline dereferences
// llm until Ready has run and the event-pump goroutines have started, so
// a nil llm is safe to carry through construction and the media-frame
// queueing window.
func New(sess *callsession.Session, gpu *gpuclient.Client, llm *llmsession.Client, toolEng *tools.Engine, telephony TelephonySender, configSvc ConfigService, summarizerAPIKey string) *Pipeline {
	return &Pipeline{
		sess:             sess,
		gpu:              gpu,
		llm:              llm,
		toolEng:          toolEng,
		telephony:        telephony,
		configSvc:        configSvc,
		summarizerAPIKey: summarizerAPIKey,
		frames:           newFrameAssembler(),
		fillers:          []string{"One moment.", "Let me check that."},
		vadResults:       make(chan vadOutcome, 4),
		turnDone:         make(chan turnOutcome, 4),
	}
}

// AttachLLM assigns the realtime LLM session once its connect handshake
// completes. Must be called before Ready and before RunLLMEvents starts.
func (p *Pipeline) AttachLLM(llm *llmsession.Client) {
	p.llm = llm
}

// Ready arms the silence and max-call-duration timers, marks the pipeline's
// handler as registered, and drains any media frames queued while the LLM
// socket was still connecting. Per the event-ordering rule, `start` sets the
// stream identifier unconditionally even before this is called; media
// frames arriving earlier are queued here.
func (p *Pipeline) Ready(ctx context.Context) {
	p.startTimers(ctx)

	// Drain repeatedly rather than once: a frame can be appended to
	// mediaQueue by the telephony read-loop goroutine between our snapshot
	// and the point we flip ready. Only when a lock-held snapshot comes back
	// empty do we flip ready in that same critical section — from then on
	// exactly one goroutine (the read-loop) ever touches accumulateFrame's
	// state, so there is never a window where both this goroutine and the
	// read-loop process frames at once.
	for {
		p.readyMu.Lock()
		queued := p.mediaQueue
		p.mediaQueue = nil
		if len(queued) == 0 {
			p.ready = true
			p.readyMu.Unlock()
			return
		}
		p.readyMu.Unlock()

		for _, frame := range queued {
			if err := p.handleMediaFrameNow(ctx, frame); err != nil {
				slog.Error("drain queued media frame", "call_id", p.sess.CallID, "error", err)
			}
		}
	}
}

// HandleMediaFrame processes one inbound 20ms μ-law frame. If the pipeline
// isn't ready yet (LLM socket still connecting), the frame is queued. Safe
// to call concurrently with Ready — it runs on the telephony adapter's
// read-loop goroutine while Ready runs on the bootstrap goroutine during
// the LLM-connect handoff window.
func (p *Pipeline) HandleMediaFrame(ctx context.Context, ulawFrame []byte) error {
	p.readyMu.Lock()
	if !p.ready {
		p.mediaQueue = append(p.mediaQueue, ulawFrame)
		p.readyMu.Unlock()
		return nil
	}
	p.readyMu.Unlock()
	return p.handleMediaFrameNow(ctx, ulawFrame)
}

func (p *Pipeline) handleMediaFrameNow(ctx context.Context, ulawFrame []byte) error {
	metrics.AudioChunks.Inc()
	return p.accumulateFrame(ctx, ulawFrame)
}

// RunLLMEvents drains the LLM session's event channel until it closes,
// dispatching each event to the turn-taking and tool-call logic. Intended
// to run on its own goroutine for the lifetime of the call.
func (p *Pipeline) RunLLMEvents(ctx context.Context) {
	for ev := range p.llm.Events() {
		p.handleLLMEvent(ctx, ev)
	}
}

// RunVADResults drains asynchronous VAD replies and feeds them through the
// turn-taking state machine. Intended to run on its own goroutine.
func (p *Pipeline) RunVADResults(ctx context.Context) {
	for out := range p.vadResults {
		p.sess.VADRequestInFlight = false
		metrics.VADRequestsInFlight.Dec()
		if out.err != nil {
			metrics.Errors.WithLabelValues("vad", "http").Inc()
			slog.Error("vad request failed", "call_id", p.sess.CallID, "error", out.err)
			continue
		}
		p.handleVADEvent(ctx, out.result, out.batch)
	}
}

// RunTurnSTT drains the parallel smart-turn + STT completions.
func (p *Pipeline) RunTurnSTT(ctx context.Context) {
	for out := range p.turnDone {
		p.handleTurnSTTResult(ctx, out)
	}
}
