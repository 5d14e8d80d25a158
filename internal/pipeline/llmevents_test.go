package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hubenschmidt/voicebridge-gateway/internal/tools"
)

func TestOnTextDeltaEnqueuesCompletedSentenceOnly(t *testing.T) {
	llm := newTestLLM(t)
	telephony := &fakeTelephony{}
	gpu := newTestGPU(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(make([]byte, pcm16FrameBytes))
	})
	p, sess := newTestPipeline(t, gpu, llm, telephony, &fakeConfigService{})
	sess.Cfg.LanguageCode = "en"

	p.onTextDelta("Hello there")
	if sess.TTSQueue.Len() != 0 {
		t.Fatal("expected no sentence queued before a boundary is reached")
	}

	p.onTextDelta(". ")
	waitForCondition(t, func() bool { return telephony.markCount("ai_speech_end") == 1 })
}

func TestOnTextDoneFlushesRemainder(t *testing.T) {
	llm := newTestLLM(t)
	telephony := &fakeTelephony{}
	gpu := newTestGPU(t, func(w http.ResponseWriter, r *http.Request) { w.Write(make([]byte, pcm16FrameBytes)) })
	p, _ := newTestPipeline(t, gpu, llm, telephony, &fakeConfigService{})

	p.onTextDelta("no boundary yet")
	p.onTextDone("no boundary yet")

	waitForCondition(t, func() bool { return telephony.markCount("ai_speech_end") == 1 })
}

func TestOnFunctionCallDispatchesBuiltinEndCall(t *testing.T) {
	llm := newTestLLM(t)
	telephony := &fakeTelephony{}
	gpu := newTestGPU(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) })
	p, sess := newTestPipeline(t, gpu, llm, telephony, &fakeConfigService{})
	sess.Cfg.EndCallAllowed = true
	p.toolEng = tools.New(tools.Config{EndCallAllowed: true})

	args, _ := json.Marshal(map[string]string{"reason": "user_requested"})
	p.onFunctionCall(context.Background(), "call_1", "end_call", args)

	waitForCondition(t, func() bool { return telephony.hangupCount() == 1 })
}
