package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"password"`
	Name     string `yaml:"database"`
	MaxConns int    `yaml:"max_conns"`
}

type MQ struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"password"`
}

type HTTP struct {
	Port int `yaml:"port"`
}

// Duration accepts "500ms"/"1m"-style values in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type RateRule struct {
	MaxRequests   int      `yaml:"max_requests"`
	Window        Duration `yaml:"window"`
	BlockDuration Duration `yaml:"block_duration"`
}

type Offline struct {
	JournalPath string   `yaml:"journal_path"`
	MaxRetries  int      `yaml:"max_retries"`
	BaseBackoff Duration `yaml:"base_backoff"`
	MaxBackoff  Duration `yaml:"max_backoff"`
}

type Hub struct {
	PollInterval Duration `yaml:"poll_interval"`
	BufferSize   int      `yaml:"buffer_size"`
}

type App struct {
	// Storage selects the backing store: "postgres" or "memory".
	Storage  string              `yaml:"storage"`
	Database DB                  `yaml:"database"`
	Rabbit   MQ                  `yaml:"rabbitmq"`
	HTTP     HTTP                `yaml:"http"`
	Rate     map[string]RateRule `yaml:"ratelimit"`
	Offline  Offline             `yaml:"offline"`
	Hub      Hub                 `yaml:"hub"`
}

// Load reads the YAML config and overlays credentials from the environment
// (a .env file is honored if present).
func Load(path string) (App, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, err
	}
	a := defaults()
	if err := yaml.Unmarshal(b, &a); err != nil {
		return App{}, fmt.Errorf("parse %s: %w", path, err)
	}
	overlayEnv(&a)

	if a.Storage != "postgres" && a.Storage != "memory" {
		return App{}, fmt.Errorf("invalid storage %q: want postgres or memory", a.Storage)
	}
	if a.Storage == "postgres" && a.Database.Host == "" {
		return App{}, errors.New("invalid config: missing database host")
	}
	return a, nil
}

func defaults() App {
	return App{
		Storage:  "memory",
		Database: DB{Port: 5432, MaxConns: 10},
		Rabbit:   MQ{Port: 5672},
		HTTP:     HTTP{Port: 8080},
		Offline: Offline{
			JournalPath: "offline-queue.jsonl",
			MaxRetries:  5,
			BaseBackoff: Duration(500 * time.Millisecond),
			MaxBackoff:  Duration(30 * time.Second),
		},
		Hub: Hub{PollInterval: Duration(10 * time.Second), BufferSize: 64},
	}
}

func overlayEnv(a *App) {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		a.Database.Pass = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		a.Database.User = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		a.Rabbit.Pass = v
	}
	if v := os.Getenv("RABBITMQ_USER"); v != "" {
		a.Rabbit.User = v
	}
}

// FindConfig probes the usual config locations.
func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
