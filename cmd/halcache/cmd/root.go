package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/halcache"
)

var rootCmd = &cobra.Command{
	Use:   "halcache",
	Short: "HAL+JSON API client with a persistent entity cache",
	Long: "CLI for navigating HAL+JSON APIs. Fetched entities are kept in a local state file " +
		"so later invocations are served from the cache.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/halcache/config.yaml)")
	flags.String("base-url", "", "API base URL")
	flags.String("state-file", "", "cache state file (default: ~/.local/share/halcache/state)")
	flags.Bool("per-item", false, "fetch unloaded collection items one by one")
	flags.Bool("http-cache", false, "honour HTTP caching headers")
	flags.String("log-level", "warn", "log level")
	flags.Duration("timeout", 30*time.Second, "request timeout")

	viper.BindPFlag("base_url", flags.Lookup("base-url"))
	viper.BindPFlag("state_file", flags.Lookup("state-file"))
	viper.BindPFlag("per_item", flags.Lookup("per-item"))
	viper.BindPFlag("http_cache", flags.Lookup("http-cache"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("timeout", flags.Lookup("timeout"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("HALCACHE")
	viper.AutomaticEnv()
	viper.SetDefault("state_file", defaultStateFile())

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "halcache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "halcache")
	}
	return ".halcache"
}

func defaultStateFile() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "halcache", "state")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "halcache", "state")
	}
	return filepath.Join(".halcache", "state")
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// session is a cache restored from and saved back to the state file.
type session struct {
	cache *halcache.Cache
	log   zerolog.Logger
	path  string
}

func openSession() (*session, error) {
	log := newLogger()

	var topts []halcache.TransportOption
	if viper.GetBool("http_cache") {
		topts = append(topts, halcache.WithResponseCache())
	}

	strategy := halcache.AvoidNPlusOne
	if viper.GetBool("per_item") {
		strategy = halcache.PerItemFetch
	}

	c := halcache.New(halcache.NewHTTPTransport(topts...),
		halcache.WithBaseURL(viper.GetString("base_url")),
		halcache.WithFetchStrategy(strategy),
		halcache.WithLogger(log),
	)

	s := &session{cache: c, log: log, path: viper.GetString("state_file")}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read state: %w", err)
	default:
		if err := c.Restore(data); err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("discarding unreadable state")
		}
	}
	return s, nil
}

// Close writes the cache back to the state file.
func (s *session) Close() error {
	data, err := s.cache.Snapshot()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// withSession runs fn against an open session and saves it afterwards.
func withSession(fn func(ctx context.Context, s *session) error) (err error) {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
	defer cancel()
	return fn(ctx, s)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// parseBody reads a JSON request body given inline or as @file.
func parseBody(arg string) (json.RawMessage, error) {
	raw := []byte(arg)
	if len(arg) > 0 && arg[0] == '@' {
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("body is not valid JSON")
	}
	return raw, nil
}
