package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/meysamhadeli/codgrade/constants/lipgloss"
	"github.com/meysamhadeli/codgrade/providers"
	"github.com/meysamhadeli/codgrade/retrieval"
	"github.com/meysamhadeli/codgrade/toolchain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RetrievalConfig controls how feedback snippets are chosen and bounded.
type RetrievalConfig struct {
	Mode     string `mapstructure:"mode"`
	Window   int    `mapstructure:"window"`
	MaxRefs  int    `mapstructure:"max_refs"`
	MaxChars int    `mapstructure:"max_chars"`
}

// Options converts the section into retrieval options.
func (r RetrievalConfig) Options() (retrieval.Options, error) {
	mode, err := retrieval.ParseMode(r.Mode)
	if err != nil {
		return retrieval.Options{}, err
	}
	opts := retrieval.DefaultOptions()
	opts.Mode = mode
	if r.Window > 0 {
		opts.Window = r.Window
	}
	if r.MaxRefs >= 0 {
		opts.MaxRefs = r.MaxRefs
	}
	if r.MaxChars > 0 {
		opts.MaxChars = r.MaxChars
	}
	return opts, nil
}

// Config represents the structure of the configuration file
type Config struct {
	Version          string                      `mapstructure:"version"`
	LogLevel         string                      `mapstructure:"log_level"`
	ProjectRoot      string                      `mapstructure:"project_root"`
	Theme            string                      `mapstructure:"theme"`
	MaxConcurrency   int                         `mapstructure:"max_concurrency"`
	// Exclude holds doublestar patterns skipped during discovery, on top of .codgradeignore.
	Exclude          []string                    `mapstructure:"exclude"`
	Retrieval        RetrievalConfig             `mapstructure:"retrieval"`
	Toolchain        toolchain.Config            `mapstructure:"toolchain"`
	AIProviderConfig *providers.AIProviderConfig `mapstructure:"ai_provider_config"`
}

// DefaultConfig values
var DefaultConfig = Config{
	Version:        "0.3.0",
	LogLevel:       "info",
	ProjectRoot:    ".",
	Theme:          "dracula",
	MaxConcurrency: 1,
	Retrieval: RetrievalConfig{
		Mode:     string(retrieval.ModeHeuristic),
		Window:   retrieval.DefaultOptions().Window,
		MaxRefs:  retrieval.DefaultOptions().MaxRefs,
		MaxChars: retrieval.DefaultOptions().MaxChars,
	},
	Toolchain: toolchain.DefaultConfig(),
	AIProviderConfig: &providers.AIProviderConfig{
		Provider: "openai",
		BaseURL:  "https://api.openai.com/v1",
		Model:    "gpt-4o",
	},
}

// EnvPrefix namespaces environment overrides, e.g. CODGRADE_RETRIEVAL_MODE.
const EnvPrefix = "CODGRADE"

// cfgFile holds the path to the configuration file (set via CLI)
var cfgFile string

// LoadConfigs initializes the configuration from file, flags, and environment variables, and returns the final config.
func LoadConfigs(rootCmd *cobra.Command, cwd string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("codgrade-config")
		v.AddConfigPath(cwd)

		// Support both YAML and JSON formats.
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				fmt.Println(lipgloss.Yellow.Render("No configuration file found, using defaults"))
			}
		}
	}

	if rootCmd != nil {
		bindFlags(v, rootCmd)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if config.AIProviderConfig == nil {
		config.AIProviderConfig = &providers.AIProviderConfig{}
	}
	if _, err := retrieval.ParseMode(config.Retrieval.Mode); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("version", DefaultConfig.Version)
	v.SetDefault("log_level", DefaultConfig.LogLevel)
	v.SetDefault("project_root", DefaultConfig.ProjectRoot)
	v.SetDefault("theme", DefaultConfig.Theme)
	v.SetDefault("max_concurrency", DefaultConfig.MaxConcurrency)
	v.SetDefault("exclude", []string{})
	v.SetDefault("retrieval.mode", DefaultConfig.Retrieval.Mode)
	v.SetDefault("retrieval.window", DefaultConfig.Retrieval.Window)
	v.SetDefault("retrieval.max_refs", DefaultConfig.Retrieval.MaxRefs)
	v.SetDefault("retrieval.max_chars", DefaultConfig.Retrieval.MaxChars)
	v.SetDefault("toolchain.javac", DefaultConfig.Toolchain.Javac)
	v.SetDefault("toolchain.java", DefaultConfig.Toolchain.Java)
	v.SetDefault("toolchain.classpath", []string{})
	v.SetDefault("toolchain.junit_launcher", "")
	v.SetDefault("toolchain.pit_jar", "")
	v.SetDefault("toolchain.build_dir", DefaultConfig.Toolchain.BuildDir)
	v.SetDefault("toolchain.timeout", DefaultConfig.Toolchain.Timeout)
	v.SetDefault("ai_provider_config.provider", DefaultConfig.AIProviderConfig.Provider)
	v.SetDefault("ai_provider_config.base_url", DefaultConfig.AIProviderConfig.BaseURL)
	v.SetDefault("ai_provider_config.model", DefaultConfig.AIProviderConfig.Model)
	v.SetDefault("ai_provider_config.api_key", "")
	v.SetDefault("ai_provider_config.max_tokens", 0)
}

// bindEnv explicitly binds environment variables to configuration keys
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("ai_provider_config.api_key", EnvPrefix+"_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("ai_provider_config.provider", EnvPrefix+"_PROVIDER")
	_ = v.BindEnv("ai_provider_config.base_url", EnvPrefix+"_BASE_URL")
	_ = v.BindEnv("ai_provider_config.model", EnvPrefix+"_MODEL")
	_ = v.BindEnv("ai_provider_config.temperature", EnvPrefix+"_TEMPERATURE")
}

// bindFlags binds the CLI flags to configuration values.
func bindFlags(v *viper.Viper, rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	_ = v.BindPFlag("log_level", flags.Lookup("log_level"))
	_ = v.BindPFlag("project_root", flags.Lookup("project_root"))
	_ = v.BindPFlag("theme", flags.Lookup("theme"))
	_ = v.BindPFlag("max_concurrency", flags.Lookup("max_concurrency"))
	_ = v.BindPFlag("retrieval.mode", flags.Lookup("retrieval_mode"))
	_ = v.BindPFlag("toolchain.timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("ai_provider_config.provider", flags.Lookup("provider"))
	_ = v.BindPFlag("ai_provider_config.model", flags.Lookup("model"))
	_ = v.BindPFlag("ai_provider_config.api_key", flags.Lookup("api_key"))
}

// InitFlags initializes the flags for the root command.
func InitFlags(rootCmd *cobra.Command) {
	// Use PersistentFlags so that these flags are available in all subcommands
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to a configuration file (JSON or YAML).")

	flags.String("log_level", DefaultConfig.LogLevel, "Log level: 'debug', 'info', 'warn' or 'error'.")
	flags.StringP("project_root", "p", DefaultConfig.ProjectRoot, "Root directory of the submission to grade.")
	flags.String("theme", DefaultConfig.Theme, "Chroma theme used when printing feedback prompts.")
	flags.Int("max_concurrency", DefaultConfig.MaxConcurrency, "Number of requirements graded at the same time.")
	flags.String("retrieval_mode", DefaultConfig.Retrieval.Mode, "How feedback snippets are chosen: 'heuristic' or 'active'.")
	flags.Duration("timeout", DefaultConfig.Toolchain.Timeout, "Time limit for each compiler, program or test run.")

	// Selection service used by active retrieval
	flags.String("provider", DefaultConfig.AIProviderConfig.Provider, "Selection service provider: 'openai' or 'ollama'.")
	flags.String("model", DefaultConfig.AIProviderConfig.Model, "Model used by the selection service.")
	flags.String("api_key", "", "API key for the selection service.")

	rootCmd.Flags().BoolP("version", "v", false, "Print the version of the application.")
}

// ToolchainTimeout returns the configured per-command timeout, or the default.
func (c *Config) ToolchainTimeout() time.Duration {
	if c.Toolchain.Timeout > 0 {
		return c.Toolchain.Timeout
	}
	return DefaultConfig.Toolchain.Timeout
}
