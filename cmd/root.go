package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/sift/internal/config"
	"github.com/zjrosen/sift/internal/log"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

const localConfigPath = ".sift/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	baseURL   string
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sift [question]",
	Short: "Ask the research assistant and watch it work",
	Long: `sift sends a question to the research service, shows each pipeline stage
as it runs (plan, retrieve, extract, critique, synthesize, verify) and prints
the evidence-based answer.

Examples:
  sift "Does intermittent fasting improve insulin sensitivity?"
  sift ask --no-stream "Is creatine safe for older adults?"
  sift history`,
	Version:           version,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runAsk(cmd, args)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .sift/config.yaml, then ~/.config/sift/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (path from SIFT_LOG, default debug.log)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "",
		"research service address (overrides server.base_url)")

	_ = viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	addAskFlags(rootCmd)
}

func setDefaults(v *viper.Viper) {
	defaults := config.Defaults()
	v.SetDefault("server.base_url", defaults.Server.BaseURL)
	v.SetDefault("server.timeout", defaults.Server.Timeout)
	v.SetDefault("server.user_agent", defaults.Server.UserAgent)
	v.SetDefault("server.connect_retries", defaults.Server.ConnectRetries)
	v.SetDefault("stream.enabled", defaults.Stream.Enabled)
	v.SetDefault("stream.max_frame_bytes", defaults.Stream.MaxFrameBytes)
	v.SetDefault("history.enabled", defaults.History.Enabled)
	v.SetDefault("history.path", defaults.History.Path)
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("ui.plain", defaults.UI.Plain)
	v.SetDefault("ui.markdown_style", defaults.UI.MarkdownStyle)
}

// userConfigPath is ~/.config/sift/config.yaml, or empty without a home dir.
func userConfigPath() string {
	dir := config.DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

func initConfig() {
	setDefaults(viper.GetViper())

	// SIFT_SERVER_BASE_URL overrides server.base_url and so on.
	viper.SetEnvPrefix("SIFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .sift/config.yaml (current directory)
		// 2. ~/.config/sift/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else if dir := config.DefaultConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// First run: write the commented default so users can find it.
			if path := userConfigPath(); path != "" {
				if writeErr := config.WriteDefaultConfig(path); writeErr == nil {
					viper.SetConfigFile(path)
					_ = viper.ReadInConfig()
				}
			}
		} else {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// configFileUsed is the file `config set` edits.
func configFileUsed() string {
	if path := viper.ConfigFileUsed(); path != "" {
		return path
	}
	if cfgFile != "" {
		return cfgFile
	}
	return userConfigPath()
}

var logCleanup func()

// setup starts debug logging and validates the loaded config.
func setup(cmd *cobra.Command, _ []string) error {
	if debugFlag || os.Getenv("SIFT_DEBUG") != "" {
		logPath := os.Getenv("SIFT_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.InitWithTeaLog(logPath, "sift")
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
		log.Info(log.CatConfig, "sift starting", "version", version, "command", cmd.Name(),
			"config", viper.ConfigFileUsed())
	}

	// `config` subcommands must work on a broken file.
	if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
		return nil
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration (%s): %w", configFileUsed(), err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	defer func() {
		if logCleanup != nil {
			logCleanup()
		}
	}()
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
