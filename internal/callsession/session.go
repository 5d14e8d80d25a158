// Package callsession defines the per-call state container and the
// process-wide registry that tracks live calls.
package callsession

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voicebridge-gateway/internal/llmsession"
	"github.com/hubenschmidt/voicebridge-gateway/internal/tools"
)

// Status is the call lifecycle state.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusEnding     Status = "ending"
	StatusEnded      Status = "ended"
)

// TranscriptEntry is one turn in the running conversation transcript.
type TranscriptEntry struct {
	Role      string
	Text      string
	TSeconds  float64
}

// Config is the configuration-service snapshot a session is built from. It
// is captured once at call start and never mutated.
type Config struct {
	SystemPrompt        string
	LanguageCode        string
	VoiceID             string
	LanguageVoices      map[string]string
	SilenceTimeout      time.Duration
	MaxCallDuration     time.Duration
	EndCallAllowed      bool
	TransferToNumber    bool
	TransferToAgent     bool
	CustomToolsAllowed  bool
	LanguageDetection   bool
	VoicemailDetection  bool
	FillerPhrases       bool
	ContextSummarizing  bool
	FirstMessage        string
	VoicemailMessage    string
	Tools               tools.Config
}

// Credentials are the telephony provider credentials for this call's
// account, resolved once at call start.
type Credentials struct {
	AccountSID string
	AuthToken  string
}

// Session is the complete state of one active call. All fields are
// allocated in NewSession; nothing here is lazily created on the hot audio
// path, since a nil buffer read on the first speech frame would corrupt
// turn detection.
type Session struct {
	// Identity
	CallID          string
	CallerNumber    string
	AssistantID     string
	OrganizationID  string
	InternalID      string // fresh UUID, distinct from the provider's call identifier
	CreatedAt       time.Time

	// Configuration snapshot and credentials
	Cfg   Config
	Creds Credentials

	// Lifecycle
	mu     sync.Mutex
	status Status

	// Flags (independent booleans, owned by the single-threaded pipeline
	// goroutine — no locking required on these)
	UserIsSpeaking             bool
	AIIsSpeaking               bool
	SpeechStartedDuringAI      bool
	AwaitingTurnConfirmation   bool
	VADRequestInFlight         bool
	STTRequestInFlight         bool
	SummarizationInFlight      bool

	// Audio buffers
	SpeechBuffer   []int16 // current user turn, consumed at end-of-turn
	VADAccumulator []int16 // 20ms frames accumulating toward the next 200ms batch
	PreRoll        [][]int16 // last 2 VAD batches preceding the current one, FIFO

	// Counters
	ConfirmedSpeechStarts int
	FastInterruptCount    int
	TurnSilenceMs         int
	TurnStart             time.Time

	// Conversation state
	Transcript       []TranscriptEntry
	RemoteItemIDs    []string // tracked for deletion during summarization
	ToolVariables    map[string]string

	// References
	TelephonySocket *websocket.Conn
	LLMSocket       *llmsession.Client
	StreamSID       string
	TTSQueue        *TTSQueue

	// Timers
	SilenceTimer *time.Timer
	MaxDurationTimer *time.Timer
}

// NewSession allocates a fully-initialized session. Every buffer and
// counter gets its zero-value-safe allocation here so the turn-taking
// state machine never has to nil-check a field it owns.
func NewSession(callID, internalID string, cfg Config, creds Credentials) *Session {
	return &Session{
		CallID:         callID,
		InternalID:     internalID,
		CreatedAt:      time.Now(),
		Cfg:            cfg,
		Creds:          creds,
		status:         StatusConnecting,
		SpeechBuffer:   make([]int16, 0, 16000*20), // headroom for max-speech (20s @ 16kHz)
		VADAccumulator: make([]int16, 0, 3200),      // 200ms @ 16kHz
		PreRoll:        make([][]int16, 0, 2),
		Transcript:     make([]TranscriptEntry, 0, 32),
		RemoteItemIDs:  make([]string, 0, 32),
		ToolVariables:  make(map[string]string),
		TTSQueue:       NewTTSQueue(),
	}
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus transitions the lifecycle status.
func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// IsEnding reports whether the call has begun or finished terminating.
// Cleanup and end-call both check this to stay idempotent.
func (s *Session) IsEnding() bool {
	st := s.Status()
	return st == StatusEnding || st == StatusEnded
}

// SetVariable implements tools.VariableStore so custom HTTP tool responses
// can write extracted fields directly into the session.
func (s *Session) SetVariable(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolVariables[name] = value
}

// Variable reads a previously extracted tool-response variable.
func (s *Session) Variable(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.ToolVariables[name]
	return v, ok
}

// AppendTranscript records one conversation turn.
func (s *Session) AppendTranscript(role, text string, tSeconds float64) {
	s.Transcript = append(s.Transcript, TranscriptEntry{Role: role, Text: text, TSeconds: tSeconds})
}

// TranscriptWordCount sums the word count of the running transcript, used
// by the opt-in summarization trigger.
func (s *Session) TranscriptWordCount() int {
	count := 0
	for _, entry := range s.Transcript {
		count += len(splitWords(entry.Text))
	}
	return count
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

// ClearTranscript resets the running transcript and tracked remote item
// ids after a summarization pass injects its summary.
func (s *Session) ClearTranscript() {
	s.Transcript = s.Transcript[:0]
	s.RemoteItemIDs = s.RemoteItemIDs[:0]
}

// PushPreRoll appends a VAD batch to the pre-roll ring, evicting the
// oldest entry once the ring holds 2 batches.
func (s *Session) PushPreRoll(batch []int16) {
	s.PreRoll = append(s.PreRoll, batch)
	if len(s.PreRoll) > 2 {
		s.PreRoll = s.PreRoll[len(s.PreRoll)-2:]
	}
}

// DrainPreRollInto prepends the pre-roll ring's contents onto the speech
// buffer (onset capture at turn start) and empties the ring.
func (s *Session) DrainPreRollInto(buf []int16) []int16 {
	for _, batch := range s.PreRoll {
		buf = append(buf, batch...)
	}
	s.PreRoll = s.PreRoll[:0]
	return buf
}
