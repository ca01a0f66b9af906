// Package config loads bpetok settings from defaults, an optional config
// file, BPETOK_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-bpetok/internal/bpe"
)

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Model    ModelConfig  `mapstructure:"model"`
	Text     TextConfig   `mapstructure:"text"`
	Server   ServerConfig `mapstructure:"server"`
	LogLevel string       `mapstructure:"log_level"`
}

type PathsConfig struct {
	Vocab  string `mapstructure:"vocab"`
	Merges string `mapstructure:"merges"`
}

type ModelConfig struct {
	UnkToken                string  `mapstructure:"unk_token"`
	ContinuingSubwordPrefix string  `mapstructure:"continuing_subword_prefix"`
	EndOfWordSuffix         string  `mapstructure:"end_of_word_suffix"`
	FuseUnk                 bool    `mapstructure:"fuse_unk"`
	ByteFallback            bool    `mapstructure:"byte_fallback"`
	ByteFallbackFormat      string  `mapstructure:"byte_fallback_format"`
	Dropout                 float64 `mapstructure:"dropout"`
	CacheCapacity           int     `mapstructure:"cache_capacity"`
	IgnoreMerges            bool    `mapstructure:"ignore_merges"`
}

type TextConfig struct {
	Splitter  string `mapstructure:"splitter"`
	Pattern   string `mapstructure:"pattern"`
	Normalize string `mapstructure:"normalize"`
	ByteLevel bool   `mapstructure:"byte_level"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Vocab:  "models/vocab.json",
			Merges: "models/merges.txt",
		},
		Model: ModelConfig{
			ByteFallbackFormat: bpe.DefaultByteFallbackFormat,
			Dropout:            -1,
			CacheCapacity:      bpe.DefaultCacheCapacity,
		},
		Text: TextConfig{
			Splitter:  "regex",
			Pattern:   "",
			Normalize: "none",
			ByteLevel: true,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         4,
			MaxTextBytes:    65536,
			RequestTimeout:  30,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each flag registered by RegisterFlags to its config key.
var flagKeys = map[string]string{
	"vocab":                     "paths.vocab",
	"merges":                    "paths.merges",
	"unk-token":                 "model.unk_token",
	"continuing-subword-prefix": "model.continuing_subword_prefix",
	"end-of-word-suffix":        "model.end_of_word_suffix",
	"fuse-unk":                  "model.fuse_unk",
	"byte-fallback":             "model.byte_fallback",
	"byte-fallback-format":      "model.byte_fallback_format",
	"dropout":                   "model.dropout",
	"cache-capacity":            "model.cache_capacity",
	"ignore-merges":             "model.ignore_merges",
	"splitter":                  "text.splitter",
	"pattern":                   "text.pattern",
	"normalize":                 "text.normalize",
	"byte-level":                "text.byte_level",
	"listen-addr":               "server.listen_addr",
	"workers":                   "server.workers",
	"max-text-bytes":            "server.max_text_bytes",
	"request-timeout":           "server.request_timeout",
	"shutdown-timeout":          "server.shutdown_timeout",
	"log-level":                 "log_level",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("vocab", defaults.Paths.Vocab, "Path to vocab.json (token to id)")
	fs.String("merges", defaults.Paths.Merges, "Path to merges.txt (one pair per line, in rank order)")
	fs.String("unk-token", defaults.Model.UnkToken, "Token substituted for unknown characters (empty disables)")
	fs.String("continuing-subword-prefix", defaults.Model.ContinuingSubwordPrefix, "Prefix of every symbol but the first, e.g. ##")
	fs.String("end-of-word-suffix", defaults.Model.EndOfWordSuffix, "Suffix of the last symbol, e.g. </w>")
	fs.Bool("fuse-unk", defaults.Model.FuseUnk, "Collapse consecutive unknown characters into one unk token")
	fs.Bool("byte-fallback", defaults.Model.ByteFallback, "Map unknown characters to byte tokens before using the unk token")
	fs.String("byte-fallback-format", defaults.Model.ByteFallbackFormat, "Format of byte tokens")
	fs.Float64("dropout", defaults.Model.Dropout, "BPE dropout probability in [0, 1]; negative leaves it unset")
	fs.Int("cache-capacity", defaults.Model.CacheCapacity, "Word cache capacity; negative disables the cache")
	fs.Bool("ignore-merges", defaults.Model.IgnoreMerges, "Emit whole words found in the vocabulary without merging")
	fs.String("splitter", defaults.Text.Splitter, "Pre-tokenizer: regex|whitespace")
	fs.String("pattern", defaults.Text.Pattern, "Regex splitter pattern (empty selects the GPT-2 pattern)")
	fs.String("normalize", defaults.Text.Normalize, "Unicode normalization: none|nfc|nfkc")
	fs.Bool("byte-level", defaults.Text.ByteLevel, "Map words to the GPT-2 byte-level alphabet")
	fs.String("listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent encode requests")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Max request text size in bytes")
	fs.Int("request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("BPETOK")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("bpetok")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// BPE converts the model section into a bpe.Config. A negative dropout
// leaves Dropout unset.
func (c Config) BPE() bpe.Config {
	cfg := bpe.Config{
		UnkToken:                c.Model.UnkToken,
		ContinuingSubwordPrefix: c.Model.ContinuingSubwordPrefix,
		EndOfWordSuffix:         c.Model.EndOfWordSuffix,
		FuseUnk:                 c.Model.FuseUnk,
		ByteFallback:            c.Model.ByteFallback,
		ByteFallbackFormat:      c.Model.ByteFallbackFormat,
		CacheCapacity:           c.Model.CacheCapacity,
		IgnoreMerges:            c.Model.IgnoreMerges,
	}

	if c.Model.Dropout >= 0 {
		cfg.Dropout = bpe.Dropout(float32(c.Model.Dropout))
	}

	return cfg
}

// bindFlags binds every known flag present in fs to its dotted config key,
// so that config file values under the same key are not shadowed by flag
// defaults.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error

	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}

		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %q: %w", f.Name, bindErr)
		}
	})

	return err
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.vocab", c.Paths.Vocab)
	v.SetDefault("paths.merges", c.Paths.Merges)
	v.SetDefault("model.unk_token", c.Model.UnkToken)
	v.SetDefault("model.continuing_subword_prefix", c.Model.ContinuingSubwordPrefix)
	v.SetDefault("model.end_of_word_suffix", c.Model.EndOfWordSuffix)
	v.SetDefault("model.fuse_unk", c.Model.FuseUnk)
	v.SetDefault("model.byte_fallback", c.Model.ByteFallback)
	v.SetDefault("model.byte_fallback_format", c.Model.ByteFallbackFormat)
	v.SetDefault("model.dropout", c.Model.Dropout)
	v.SetDefault("model.cache_capacity", c.Model.CacheCapacity)
	v.SetDefault("model.ignore_merges", c.Model.IgnoreMerges)
	v.SetDefault("text.splitter", c.Text.Splitter)
	v.SetDefault("text.pattern", c.Text.Pattern)
	v.SetDefault("text.normalize", c.Text.Normalize)
	v.SetDefault("text.byte_level", c.Text.ByteLevel)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
}
