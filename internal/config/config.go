package config

import (
	"errors"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "tasks.db"
	DefaultTasksFileName  = "tasks.json"
	DefaultOrderFileName  = "order.json"
	DefaultLogFileName    = "echotask.log"
	lockFileName          = "echotask.lock"
	appDirName            = "echotask"
)

type Keymap struct {
	Quit          string `toml:"quit"`
	Add           string `toml:"add"`
	Up            string `toml:"up"`
	Down          string `toml:"down"`
	Toggle        string `toml:"toggle"`
	Delete        string `toml:"delete"`
	Complete      string `toml:"complete"`
	Confirm       string `toml:"confirm"`
	Cancel        string `toml:"cancel"`
	Search        string `toml:"search"`
	TagFilter     string `toml:"tag_filter"`
	CycleFilter   string `toml:"cycle_filter"`
	MoveUp        string `toml:"move_up"`
	MoveDown      string `toml:"move_down"`
	Subtask       string `toml:"subtask"`
	SubtaskToggle string `toml:"subtask_toggle"`
	Rewrite       string `toml:"rewrite"`
}

// Cloud holds the opt-in settings for the cloud rewrite collaborator.
type Cloud struct {
	Enabled  bool   `toml:"enabled"`
	APIKey   string `toml:"api_key"`
	Endpoint string `toml:"endpoint"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
	Tone     string `toml:"tone"`
}

type Config struct {
	DataDir       string `toml:"data_dir"`
	DefaultFilter string `toml:"default_filter"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	Keys          Keymap `toml:"keys"`
	Cloud         Cloud  `toml:"cloud"`
}

// ResolveConfigPath returns the config file location: the user config dir
// when available, the working directory otherwise.
func ResolveConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(base, appDirName, DefaultConfigFileName)
}

func LoadOrCreate(path string) (Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	return cfg, nil
}

func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, DefaultDBName)
}

func (c Config) TasksFilePath() string {
	return filepath.Join(c.DataDir, DefaultTasksFileName)
}

func (c Config) OrderFilePath() string {
	return filepath.Join(c.DataDir, DefaultOrderFileName)
}

func (c Config) LockFilePath() string {
	return filepath.Join(c.DataDir, lockFileName)
}

func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, DefaultLogFileName)
}

// EnsureDataDir creates the data directory when missing.
func (c Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o755)
}

func write(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, appDirName)
}

func defaultConfig() Config {
	return Config{
		DataDir:       defaultDataDir(),
		DefaultFilter: "all",
		LogLevel:      "info",
		LogFormat:     "text",
		Keys: Keymap{
			Quit:          "q",
			Add:           "a",
			Up:            "k",
			Down:          "j",
			Toggle:        " ",
			Delete:        "d",
			Complete:      "c",
			Confirm:       "enter",
			Cancel:        "esc",
			Search:        "/",
			TagFilter:     "t",
			CycleFilter:   "f",
			MoveUp:        "K",
			MoveDown:      "J",
			Subtask:       "s",
			SubtaskToggle: "x",
			Rewrite:       "r",
		},
		Cloud: Cloud{
			Enabled:  false,
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
			Language: "en",
			Tone:     "neutral",
		},
	}
}
