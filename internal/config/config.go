// Package config loads Saddie's settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/listen"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// ErrMissingCredential is returned by Validate when a required API key is absent.
var ErrMissingCredential = errors.New("config: missing credential")

const (
	TTSDeepgram   = "deepgram"
	TTSElevenLabs = "elevenlabs"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress     string        `env:"HTTP_ADDRESS" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// CallPassword protects /call when set.
	CallPassword   string `env:"CALL_PASSWORD"`
	ICEServersJSON string `env:"ICE_SERVERS_JSON"`
	// PublicURL is where Twilio reaches our webhooks, e.g. https://saddie.example.com.
	PublicURL string `env:"BASE_URL"`

	AssemblyAIKey   string `env:"ASSEMBLYAI_API_KEY"`
	CerebrasKey     string `env:"CEREBRAS_API_KEY"`
	CerebrasModelID string `env:"CEREBRAS_MODEL_ID" envDefault:"gpt-oss-120b"`

	TTSProvider       string `env:"TTS_PROVIDER" envDefault:"deepgram"`
	DeepgramKey       string `env:"DEEPGRAM_API_KEY"`
	DeepgramModel     string `env:"DEEPGRAM_MODEL"`
	ElevenLabsKey     string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `env:"ELEVENLABS_VOICE_ID"`

	SupabaseURL    string `env:"SUPABASE_URL"`
	SupabaseKey    string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	OrdersTable    string `env:"SUPABASE_ORDERS_TABLE" envDefault:"orders"`
	ReceiptsBucket string `env:"SUPABASE_RECEIPTS_BUCKET"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`

	GreetingDelay time.Duration `env:"GREETING_DELAY" envDefault:"500ms"`
	TurnTimeout   time.Duration `env:"TURN_TIMEOUT" envDefault:"60s"`

	Voice Voice `envPrefix:"VOICE_"`
}

// Voice is the voice-interaction tuning.
type Voice struct {
	WakeWords          []string      `env:"WAKE_WORDS" envSeparator:"," envDefault:"hey saddie,hey,saddie"`
	StopCommands       []string      `env:"STOP_COMMANDS" envSeparator:"," envDefault:"stop,pause,hold on,wait,quiet,silence,enough,never mind,hang on"`
	WakeConfidence     float64       `env:"WAKE_CONFIDENCE" envDefault:"0.75"`
	MinConfidence      float64       `env:"MIN_CONFIDENCE" envDefault:"0.75"`
	MinTranscriptChars int           `env:"MIN_TRANSCRIPT_CHARS" envDefault:"3"`
	RearmDelay         time.Duration `env:"REARM_DELAY" envDefault:"8s"`
	RestartDelay       time.Duration `env:"RESTART_DELAY" envDefault:"1s"`
	InterruptOnWake    bool          `env:"INTERRUPT_ON_WAKE" envDefault:"true"`
	InterimResults     bool          `env:"INTERIM_RESULTS" envDefault:"true"`
	Continuous         bool          `env:"CONTINUOUS" envDefault:"true"`
	Language           string        `env:"LANGUAGE" envDefault:"en-US"`
}

// Load reads .env when present, then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	cfg.TTSProvider = strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	return cfg, nil
}

// Validate checks the credentials a mode needs. Voice calls need recognition and
// synthesis keys on top of the AI key.
func (c Config) Validate(voice bool) error {
	var missing []string
	need := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	need("CEREBRAS_API_KEY", c.CerebrasKey)
	if voice {
		need("ASSEMBLYAI_API_KEY", c.AssemblyAIKey)
		switch c.TTSProvider {
		case TTSDeepgram:
			need("DEEPGRAM_API_KEY", c.DeepgramKey)
		case TTSElevenLabs:
			need("ELEVENLABS_API_KEY", c.ElevenLabsKey)
			need("ELEVENLABS_VOICE_ID", c.ElevenLabsVoiceID)
		default:
			return fmt.Errorf("config: unknown TTS_PROVIDER %q", c.TTSProvider)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}

// OrdersEnabled reports whether completed orders can be stored.
func (c Config) OrdersEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

// SMSEnabled reports whether order confirmations can be texted.
func (c Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// Listen converts the voice tuning for the listen package.
func (c Config) Listen() listen.Config {
	v := c.Voice
	return listen.Config{
		WakeWords:          lowerAll(v.WakeWords),
		StopCommands:       lowerAll(v.StopCommands),
		WakeConfidence:     v.WakeConfidence,
		MinConfidence:      v.MinConfidence,
		MinTranscriptChars: v.MinTranscriptChars,
		RearmDelay:         v.RearmDelay,
		RestartDelay:       v.RestartDelay,
		InterruptOnWake:    v.InterruptOnWake,
		InterimResults:     v.InterimResults,
		Continuous:         v.Continuous,
		Language:           v.Language,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
