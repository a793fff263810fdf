package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	TranscriptDir string
	OutcomeDBPath string
	PolicyPath    string
	AgentName     string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	PublicBaseURL    string

	CerebrasKey     string
	CerebrasModelID string

	DefaultMaxCounterOffers      int
	DefaultMaxClarifications     int
	DefaultMaxSilenceRetries     int
	DefaultSilenceTimeoutSeconds int
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it")
	}

	cfg := Config{
		HTTPAddress:   getEnv("HTTP_ADDRESS", ":8080"),
		TranscriptDir: getEnv("TRANSCRIPT_DIR", "transcripts"),
		OutcomeDBPath: getEnv("OUTCOME_DB_PATH", "calls.db"),
		PolicyPath:    os.Getenv("POLICY_PATH"),
		AgentName:     getEnv("AGENT_NAME", "Alex"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		PublicBaseURL:    os.Getenv("PUBLIC_BASE_URL"),

		CerebrasKey:     os.Getenv("CEREBRAS_API_KEY"),
		CerebrasModelID: getEnv("CEREBRAS_MODEL_ID", "gpt-oss-120b"),

		DefaultMaxCounterOffers:      getEnvInt("MAX_COUNTER_OFFERS", 3),
		DefaultMaxClarifications:     getEnvInt("MAX_CLARIFICATIONS", 2),
		DefaultMaxSilenceRetries:     getEnvInt("MAX_SILENCE_RETRIES", 2),
		DefaultSilenceTimeoutSeconds: getEnvInt("SILENCE_TIMEOUT_SECONDS", 10),
	}

	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		log.Println("Warning: TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set - outbound dialing disabled")
	}
	if cfg.PublicBaseURL == "" {
		log.Println("Warning: PUBLIC_BASE_URL not set - Twilio webhooks cannot reach this server")
	}
	if cfg.CerebrasKey == "" {
		log.Println("CEREBRAS_API_KEY not set - agent lines use templates without LLM phrasing")
	}

	log.Printf("config: HTTP_ADDRESS=%s TRANSCRIPT_DIR=%s", cfg.HTTPAddress, cfg.TranscriptDir)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, v, defaultValue)
		return defaultValue
	}
	return n
}
