package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const defaultConfigDir = ".config/twopass"

// Config holds user configuration loaded from TOML.
type Config struct {
	Models struct {
		Acoustic     string   `toml:"acoustic"`      // gob acoustic model
		Dictionary   string   `toml:"dictionary"`    // N-gram mode word dictionary
		NGram        string   `toml:"ngram"`         // forward ARPA
		ReverseNGram string   `toml:"reverse_ngram"` // optional reverse ARPA
		Grammars     []string `toml:"grammars"`      // grammar specs, see twopass.ParseGrammarSpec
	} `toml:"models"`

	Gaussian struct {
		Method   string  `toml:"method"` // none, safe, heuristic, beam
		TopN     int     `toml:"top_n"`
		Beam     float64 `toml:"beam"`
		CDMethod string  `toml:"cd_method"` // max, avg, best
		CDBestN  int     `toml:"cd_best_n"`
	} `toml:"gaussian"`

	Pass1 struct {
		BeamWidth       float64 `toml:"beam_width"`
		MaxActiveTokens int     `toml:"max_active_tokens"`
		LMWeight        float64 `toml:"lm_weight"`
		Penalty         float64 `toml:"penalty"`
		Factoring       string  `toml:"factoring"` // 1gram, 2gram
		WordPair        bool    `toml:"word_pair"`
		WordPairLimit   int     `toml:"word_pair_limit"`
		Share           bool    `toml:"share"`
	} `toml:"pass1"`

	Pass2 struct {
		LMWeight        float64 `toml:"lm_weight"`
		Penalty         float64 `toml:"penalty"`
		NBest           int     `toml:"nbest"`
		EnvelopeWidth   int     `toml:"envelope_width"`
		StackSize       int     `toml:"stack_size"`
		MaxExpansions   int     `toml:"max_expansions"`
		TimeoutMS       int     `toml:"timeout_ms"`
		Heuristic       string  `toml:"heuristic"` // trellis, acoustic
		ConfidenceAlpha float64 `toml:"confidence_alpha"`
	} `toml:"pass2"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"` // tee to stderr when logging to a file
	} `toml:"logging"`

	Paths struct {
		LogPath    string `toml:"log_path"` // empty logs to stderr
		ConfigPath string `toml:"-"`
	} `toml:"paths"`
}

// Default returns Config populated with defaults.
func Default() *Config {
	cfg := &Config{}

	cfg.Gaussian.Method = "safe"
	cfg.Gaussian.TopN = 8
	cfg.Gaussian.Beam = 4.0
	cfg.Gaussian.CDMethod = "best"
	cfg.Gaussian.CDBestN = 3

	cfg.Pass1.BeamWidth = 80.0
	cfg.Pass1.MaxActiveTokens = 1500
	cfg.Pass1.LMWeight = 8.0
	cfg.Pass1.Penalty = -2.0
	cfg.Pass1.Factoring = "2gram"
	cfg.Pass1.WordPairLimit = 3
	cfg.Pass1.Share = true

	cfg.Pass2.LMWeight = 8.0
	cfg.Pass2.Penalty = -2.0
	cfg.Pass2.NBest = 5
	cfg.Pass2.EnvelopeWidth = 30
	cfg.Pass2.StackSize = 500
	cfg.Pass2.MaxExpansions = 2000
	cfg.Pass2.Heuristic = "trellis"
	cfg.Pass2.ConfidenceAlpha = 0.05

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// DefaultPath returns ~/.config/twopass/config.toml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, defaultConfigDir, "config.toml")
}

// Load loads config from file, applying defaults. A missing file is
// created from the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := Save(cfg, path); err != nil {
			return nil, err
		}
		cfg.Paths.ConfigPath = path
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TWOPASS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TWOPASS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TWOPASS_LOG_PATH"); v != "" {
		cfg.Paths.LogPath = v
	}
	if v := os.Getenv("TWOPASS_GAUSSIAN_METHOD"); v != "" {
		cfg.Gaussian.Method = v
	}
	if v := os.Getenv("TWOPASS_BEAM_WIDTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pass1.BeamWidth = f
		}
	}
	if v := os.Getenv("TWOPASS_NBEST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pass2.NBest = n
		}
	}
	if v := os.Getenv("TWOPASS_WORD_PAIR"); v != "" {
		cfg.Pass1.WordPair = v != "0" && strings.ToLower(v) != "false"
	}
}
