package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the environment-derived configuration shared by both binaries.
type Settings struct {
	Port       string
	PublicPath string // prefix of the websocket_url handed to clients

	MongoDB      string
	SessionTTL   time.Duration
	NumQuestions int

	VertexProject  string
	VertexLocation string
	VertexModel    string

	GCSBucket string

	ReportStream  string
	ReportWorkers int

	// client side
	APIBaseURL        string
	ConnectTimeout    time.Duration
	MinUtteranceChars int
	SpeechLanguage    string
	DeepgramAPIKey    string
	DeepgramModel     string
}

// Load reads .env (if present) and the environment, applying defaults.
func Load() Settings {
	_ = godotenv.Load()

	return Settings{
		Port:       env("PORT", "8080"),
		PublicPath: strings.TrimRight(env("PUBLIC_WS_PATH", "/interview/realtime/ws"), "/"),

		MongoDB:      env("MONGO_DB", "yoointerview"),
		SessionTTL:   envDuration("SESSION_TTL", 2*time.Hour),
		NumQuestions: envInt("NUM_QUESTIONS", 8),

		VertexProject:  os.Getenv("VERTEX_PROJECT_ID"),
		VertexLocation: env("VERTEX_LOCATION", "us-central1"),
		VertexModel:    env("VERTEX_MODEL", "gemini-1.5-flash"),

		GCSBucket: os.Getenv("GCS_BUCKET"),

		ReportStream:  env("REPORT_STREAM", "interview:reports"),
		ReportWorkers: envInt("REPORT_WORKERS", 2),

		APIBaseURL:        strings.TrimRight(env("API_BASE_URL", "http://localhost:8080"), "/"),
		ConnectTimeout:    envDuration("CONNECT_TIMEOUT", 30*time.Second),
		MinUtteranceChars: envInt("MIN_UTTERANCE_CHARS", 5),
		SpeechLanguage:    env("SPEECH_LANGUAGE", "en-US"),
		DeepgramAPIKey:    os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     env("DEEPGRAM_MODEL", "aura-2-thalia-en"),
	}
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
