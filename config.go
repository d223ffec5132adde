package lagosai

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/catchmeifyoucaan/lagosai/models"
	"github.com/catchmeifyoucaan/lagosai/speech"
	"github.com/catchmeifyoucaan/lagosai/stores"
)

const (
	Default_Addr       = ":8080"
	Default_Public_URL = "http://localhost:8080"
)

// Config holds everything needed to build an Oracle. Settings are plain
// values; Cache, Remote and Speaker may be supplied directly and otherwise
// get opened from the settings by New_Oracle.
type Config struct {
	Addr           string
	Cache_Path     string
	Remote_Config  *stores.StoreConfig
	Public_URL     string
	Video_Max_Wait time.Duration
	Sync_Debounce  time.Duration
	Credentials    models.Credentials

	ElevenLabs_API_Key  string
	ElevenLabs_Voice_ID string

	Cache   stores.Cache
	Remote  stores.RemoteStore
	Speaker speech.Speaker
	Factory Model_Factory
	Logger  *log.Logger
}

// NewConfig creates a configuration with in-memory storage and no sync.
func NewConfig() *Config {
	return &Config{
		Addr:          Default_Addr,
		Public_URL:    Default_Public_URL,
		Remote_Config: stores.NewStoreConfig("none", ""),
	}
}

// WithCache sets the local cache
func (c *Config) WithCache(cache stores.Cache) *Config {
	c.Cache = cache
	return c
}

// WithBoltCache opens a bbolt cache at path
func (c *Config) WithBoltCache(path string) *Config {
	cache, err := stores.NewBoltCache(path)
	if err != nil {
		panic("Failed to open bolt cache: " + err.Error())
	}
	c.Cache = cache
	c.Cache_Path = path
	return c
}

// WithRemote sets the remote synchronized store
func (c *Config) WithRemote(remote stores.RemoteStore) *Config {
	c.Remote = remote
	return c
}

// WithSQLiteRemote sets a SQLite remote store with the specified database path
func (c *Config) WithSQLiteRemote(dbPath string) *Config {
	store, err := stores.NewSQLiteStoreSimple(dbPath)
	if err != nil {
		panic("Failed to create SQLite store: " + err.Error())
	}
	c.Remote = store
	return c
}

// WithPostgresRemote sets a PostgreSQL remote store with the specified connection parameters
func (c *Config) WithPostgresRemote(host, user, password, dbname string, port int) *Config {
	store, err := stores.NewPostgresStoreDefault(host, user, password, dbname, port)
	if err != nil {
		panic("Failed to create PostgreSQL store: " + err.Error())
	}
	c.Remote = store
	return c
}

func (c *Config) WithCredentials(creds models.Credentials) *Config {
	c.Credentials = creds
	return c
}

func (c *Config) WithSpeaker(speaker speech.Speaker) *Config {
	c.Speaker = speaker
	return c
}

func (c *Config) WithFactory(factory Model_Factory) *Config {
	c.Factory = factory
	return c
}

func (c *Config) WithPublicURL(publicURL string) *Config {
	c.Public_URL = publicURL
	return c
}

func (c *Config) WithLogger(logger *log.Logger) *Config {
	c.Logger = logger
	return c
}

// Load_Config reads the configuration from the environment, after loading a
// .env file when one exists.
func Load_Config() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	c := NewConfig()
	c.Addr = envOr("LAGOS_ADDR", c.Addr)
	c.Cache_Path = os.Getenv("LAGOS_CACHE_PATH")
	c.Public_URL = strings.TrimRight(envOr("LAGOS_PUBLIC_URL", c.Public_URL), "/")

	c.Remote_Config = stores.NewStoreConfig(envOr("LAGOS_REMOTE_TYPE", "none"), os.Getenv("LAGOS_REMOTE_DSN"))
	if poll := os.Getenv("LAGOS_REMOTE_POLL"); poll != "" {
		c.Remote_Config.WithOption("poll_interval", poll)
	}

	var err error
	if c.Video_Max_Wait, err = envDuration("LAGOS_VIDEO_MAX_WAIT"); err != nil {
		return nil, err
	}
	if c.Sync_Debounce, err = envDuration("LAGOS_SYNC_DEBOUNCE"); err != nil {
		return nil, err
	}

	c.Credentials = models.Credentials{
		OpenAI:     os.Getenv("OPENAI_API_KEY"),
		Gemini:     os.Getenv("GEMINI_API_KEY"),
		Claude:     os.Getenv("ANTHROPIC_API_KEY"),
		Perplexity: os.Getenv("PERPLEXITY_API_KEY"),
	}.Trimmed()
	c.ElevenLabs_API_Key = os.Getenv("ELEVENLABS_API_KEY")
	c.ElevenLabs_Voice_ID = os.Getenv("ELEVENLABS_VOICE_ID")

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings without opening anything.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.Remote == nil && c.Remote_Config != nil {
		switch c.Remote_Config.Type {
		case "", "none", "memory":
		case "sqlite", "postgres":
			if c.Remote_Config.Connection == "" {
				return fmt.Errorf("remote store %s needs a connection string", c.Remote_Config.Type)
			}
		default:
			return fmt.Errorf("unsupported store type: %s", c.Remote_Config.Type)
		}
		if poll, ok := c.Remote_Config.Options["poll_interval"]; ok {
			if d, err := time.ParseDuration(poll); err != nil || d <= 0 {
				return fmt.Errorf("invalid remote poll interval %q", poll)
			}
		}
	}
	if c.Public_URL != "" {
		u, err := url.Parse(c.Public_URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid public URL %q", c.Public_URL)
		}
	}
	if c.Video_Max_Wait < 0 || c.Sync_Debounce < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if (c.ElevenLabs_API_Key == "") != (c.ElevenLabs_Voice_ID == "") {
		return fmt.Errorf("ElevenLabs needs both an API key and a voice id")
	}
	return nil
}

// open fills in the cache, remote store, speaker and factory from the settings.
func (c *Config) open() error {
	if c.Cache == nil {
		cache, err := stores.NewCache(c.Cache_Path)
		if err != nil {
			return fmt.Errorf("failed to open local cache: %w", err)
		}
		c.Cache = cache
	}
	if c.Remote == nil && c.Remote_Config != nil {
		remote, err := stores.NewRemote(c.Remote_Config)
		if err != nil {
			return fmt.Errorf("failed to open remote store: %w", err)
		}
		c.Remote = remote
	}
	if c.Speaker == nil && c.ElevenLabs_API_Key != "" {
		c.Speaker = speech.New_ElevenLabs(c.ElevenLabs_API_Key, c.ElevenLabs_Voice_ID)
	}
	if c.Factory == nil {
		c.Factory = &Default_Factory{Video_Max_Wait: c.Video_Max_Wait}
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stdout, "[oracle] ", log.LstdFlags)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
