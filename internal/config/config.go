package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Network    NetworkConfig    `mapstructure:"network"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Debug           bool          `mapstructure:"debug"`
}

type NetworkConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	BrowserAgent    string        `mapstructure:"browser_agent"`
	AcceptLanguage  string        `mapstructure:"accept_language"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"`
}

type ExtractionConfig struct {
	// JavaScript selects headless rendering: never, auto or always.
	JavaScript      string        `mapstructure:"javascript"`
	JSTimeout       time.Duration `mapstructure:"js_timeout"`
	WaitForSelector string        `mapstructure:"wait_for_selector"`
}

type FallbackConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ClassifierConfig struct {
	ForumIndicators []string `mapstructure:"forum_indicators"`
	WeixinDomains   []string `mapstructure:"weixin_domains"`
	RoutedDomains   []string `mapstructure:"routed_domains"`
}

type BrowserConfig struct {
	Default string               `mapstructure:"default"`
	Paths   map[string]string    `mapstructure:"paths"`
	Cookies BrowserCookiesConfig `mapstructure:"cookies"`
}

type BrowserCookiesConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Domains []string `mapstructure:"domains"`
	Exclude []string `mapstructure:"exclude"`
}

type OutputConfig struct {
	DefaultFormat string `mapstructure:"default_format"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

const envPrefix = "PAGEXT"

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Debug:           false,
		},
		Network: NetworkConfig{
			Timeout:         15 * time.Second,
			UserAgent:       "",
			BrowserAgent:    "",
			AcceptLanguage:  "zh-CN,zh;q=0.9",
			FollowRedirects: true,
			MaxRedirects:    10,
		},
		Extraction: ExtractionConfig{
			JavaScript:      "never",
			JSTimeout:       15 * time.Second,
			WaitForSelector: "",
		},
		Fallback: FallbackConfig{
			BaseURL: "https://r.jina.ai/",
			APIKey:  "",
			Timeout: 15 * time.Second,
		},
		Classifier: ClassifierConfig{
			ForumIndicators: []string{
				"forum", "topic", "thread", "post", "reply", "comment", "discuss",
				"论坛", "帖子", "回复", "评论", "讨论",
			},
			WeixinDomains: []string{"mp.weixin.qq.com", "weixin.qq.com"},
			RoutedDomains: []string{"zhihu.com"},
		},
		Browser: BrowserConfig{
			Default: "auto",
			Paths:   map[string]string{},
			Cookies: BrowserCookiesConfig{
				Enabled: false,
				Domains: []string{"*"},
				Exclude: []string{},
			},
		},
		Output: OutputConfig{
			DefaultFormat: "text",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/pagext/config.toml.
func DefaultPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("error finding home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "pagext", "config.toml"), nil
}

// Load overlays the config file (if any) and PAGEXT_* environment variables
// on top of Default. A missing file is not an error.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigType("toml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.debug", cfg.Server.Debug)

	v.SetDefault("network.timeout", cfg.Network.Timeout)
	v.SetDefault("network.user_agent", cfg.Network.UserAgent)
	v.SetDefault("network.browser_agent", cfg.Network.BrowserAgent)
	v.SetDefault("network.accept_language", cfg.Network.AcceptLanguage)
	v.SetDefault("network.follow_redirects", cfg.Network.FollowRedirects)
	v.SetDefault("network.max_redirects", cfg.Network.MaxRedirects)

	v.SetDefault("extraction.javascript", cfg.Extraction.JavaScript)
	v.SetDefault("extraction.js_timeout", cfg.Extraction.JSTimeout)
	v.SetDefault("extraction.wait_for_selector", cfg.Extraction.WaitForSelector)

	v.SetDefault("fallback.base_url", cfg.Fallback.BaseURL)
	v.SetDefault("fallback.api_key", cfg.Fallback.APIKey)
	v.SetDefault("fallback.timeout", cfg.Fallback.Timeout)

	v.SetDefault("classifier.forum_indicators", cfg.Classifier.ForumIndicators)
	v.SetDefault("classifier.weixin_domains", cfg.Classifier.WeixinDomains)
	v.SetDefault("classifier.routed_domains", cfg.Classifier.RoutedDomains)

	v.SetDefault("browser.default", cfg.Browser.Default)
	v.SetDefault("browser.paths", cfg.Browser.Paths)
	v.SetDefault("browser.cookies.enabled", cfg.Browser.Cookies.Enabled)
	v.SetDefault("browser.cookies.domains", cfg.Browser.Cookies.Domains)
	v.SetDefault("browser.cookies.exclude", cfg.Browser.Cookies.Exclude)

	v.SetDefault("output.default_format", cfg.Output.DefaultFormat)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be positive, got %s", c.Network.Timeout)
	}
	if c.Fallback.Timeout <= 0 {
		return fmt.Errorf("fallback.timeout must be positive, got %s", c.Fallback.Timeout)
	}
	if c.Fallback.BaseURL == "" {
		return errors.New("fallback.base_url must not be empty")
	}
	switch c.Extraction.JavaScript {
	case "never", "auto", "always":
	default:
		return fmt.Errorf("invalid extraction.javascript %q (want never, auto or always)", c.Extraction.JavaScript)
	}
	switch c.Output.DefaultFormat {
	case "html", "markdown", "text":
	default:
		return fmt.Errorf("invalid output.default_format %q (want html, markdown or text)", c.Output.DefaultFormat)
	}
	return nil
}

func (c *Config) CreateExampleConfig(configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	exampleContent := `# pagext configuration file

[server]
port = 8000
read_timeout = "10s"
write_timeout = "60s"
shutdown_timeout = "15s"
debug = false

[network]
# Timeout for fetching the target page
timeout = "15s"
user_agent = ""                # Custom user agent (empty = desktop Chrome)
browser_agent = ""             # Random UA family: auto, chrome, firefox, safari, edge
accept_language = "zh-CN,zh;q=0.9"
follow_redirects = true
max_redirects = 10

[extraction]
# Headless rendering
javascript = "never"           # never, auto, always
js_timeout = "15s"
wait_for_selector = ""         # CSS selector to wait for (optional)

[fallback]
# Reader service used when local extraction fails or yields nothing
base_url = "https://r.jina.ai/"
api_key = ""                   # Optional, raises rate limits
timeout = "15s"

[classifier]
forum_indicators = ["forum", "topic", "thread", "post", "reply", "comment", "discuss", "论坛", "帖子", "回复", "评论", "讨论"]
weixin_domains = ["mp.weixin.qq.com", "weixin.qq.com"]
# Hosts that skip local extraction and go straight to the reader service
routed_domains = ["zhihu.com"]

[browser]
# Browser for cookie extraction
default = "auto"               # auto, chrome, firefox, safari, zen

[browser.paths]
chrome = ""
firefox = ""
safari = ""
zen = ""

[browser.cookies]
enabled = false
domains = ["*"]                # Inject cookies for all domains when enabled
exclude = []

[output]
default_format = "text"        # html, markdown, text

[logging]
level = "info"                 # debug, info, warn, error
file = ""                      # Log file path (empty = stderr only)
`

	return os.WriteFile(configPath, []byte(exampleContent), 0644)
}
