package main

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/hubenschmidt/voicebridge-gateway/internal/env"
)

// tuning holds knobs that may eventually move to a database; for now a YAML
// file keeps them out of deployment env vars, matching the teacher's split
// between a gateway.json tuning file and env-var deployment settings.
type tuning struct {
	DefaultSilenceSec int `yaml:"default_silence_timeout_seconds"`
	DefaultMaxCallMin int `yaml:"default_max_call_duration_minutes"`
}

func defaultTuning() tuning {
	return tuning{
		DefaultSilenceSec: 30,
		DefaultMaxCallMin: 30,
	}
}

// loadTuning reads gateway.yaml if present, otherwise returns defaults.
func loadTuning(path string) tuning {
	t := defaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		return t
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return defaultTuning()
	}
	return t
}

// config is the deployment-level configuration, read from environment
// variables only — secrets and per-environment URLs never belong in a
// checked-in tuning file.
type config struct {
	port               string
	gpuInferenceURL    string
	gpuInferenceAPIKey string
	configSvcURL       string
	configSvcSecret    string
	llmRealtimeURL     string
	summarizerAPIKey   string
	publicWSBase       string
	streamPathPrefix   string
	incomingPath       string
	statusPath         string
	validateSignatures bool
	maxConcurrentCalls int
}

func loadConfig() config {
	return config{
		port:               env.Str("GATEWAY_PORT", "8000"),
		gpuInferenceURL:    env.Str("GPU_INFERENCE_URL", "http://localhost:9000"),
		gpuInferenceAPIKey: env.Str("GPU_INFERENCE_API_KEY", ""),
		configSvcURL:       env.Str("CONFIG_SERVICE_URL", "http://localhost:9100"),
		configSvcSecret:    env.Str("CONFIG_SERVICE_INTERNAL_SECRET", ""),
		llmRealtimeURL:     env.Str("LLM_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		summarizerAPIKey:   env.Str("OPENAI_API_KEY", ""),
		publicWSBase:       env.Str("PUBLIC_WS_BASE", "wss://localhost:8000"),
		streamPathPrefix:   env.Str("STREAM_PATH_PREFIX", "/voice/stream"),
		incomingPath:       env.Str("INCOMING_WEBHOOK_PATH", "/voice/incoming"),
		statusPath:         env.Str("STATUS_WEBHOOK_PATH", "/voice/status"),
		validateSignatures: envBool("TWILIO_VALIDATE_SIGNATURES", false),
		maxConcurrentCalls: envInt("MAX_CONCURRENT_CALLS", 100),
	}
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
