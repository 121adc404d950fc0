package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Browser      BrowserConfig      `mapstructure:"browser"`
	ExternalTool ExternalToolConfig `mapstructure:"external_tool"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	OutputDir          string        `mapstructure:"output_dir"`
	LogsDir            string        `mapstructure:"logs_dir"`
	MaxRetries         int           `mapstructure:"max_retries"` // retries after the first attempt
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	ConcurrentLimit    int           `mapstructure:"concurrent_limit"`
	StrategyTimeout    time.Duration `mapstructure:"strategy_timeout"`
	DisabledStrategies []string      `mapstructure:"disabled_strategies"`
	MinMediaBytes      int           `mapstructure:"min_media_bytes"`
	FirstChunkBytes    int           `mapstructure:"first_chunk_bytes"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
}

// HTTPConfig contains the browser-like request settings shared by every plain HTTP client
type HTTPConfig struct {
	Timeout        time.Duration     `mapstructure:"timeout"`
	UserAgent      string            `mapstructure:"user_agent"`
	Referer        string            `mapstructure:"referer"`
	AcceptLanguage string            `mapstructure:"accept_language"`
	Headers        map[string]string `mapstructure:"headers"`
	CookieFile     string            `mapstructure:"cookie_file"`
}

// BrowserConfig contains headless browser configuration
type BrowserConfig struct {
	Enabled                  bool          `mapstructure:"enabled"`
	ExecPath                 string        `mapstructure:"exec_path"`
	ProfileDir               string        `mapstructure:"profile_dir"`
	Headless                 bool          `mapstructure:"headless"`
	NavigationTimeout        time.Duration `mapstructure:"navigation_timeout"`
	CaptureNavigationTimeout time.Duration `mapstructure:"capture_navigation_timeout"`
	SettleTime               time.Duration `mapstructure:"settle_time"`
	ClickTimeout             time.Duration `mapstructure:"click_timeout"`
	ClickWait                time.Duration `mapstructure:"click_wait"`
	WarmupURL                string        `mapstructure:"warmup_url"`
	WarmupTimeout            time.Duration `mapstructure:"warmup_timeout"`
}

// ExternalToolConfig contains configuration for the external downloader binary (yt-dlp)
type ExternalToolConfig struct {
	Binary         string        `mapstructure:"binary"`
	Format         string        `mapstructure:"format"`
	MergeFormat    string        `mapstructure:"merge_format"`
	ChunkSize      string        `mapstructure:"chunk_size"`
	SocketTimeout  time.Duration `mapstructure:"socket_timeout"`
	Retries        int           `mapstructure:"retries"`
	CookieFile     string        `mapstructure:"cookie_file"`
	CanonicalURL   string        `mapstructure:"canonical_url"`   // printf template taking the video ID
	RewriteMarkers []string      `mapstructure:"rewrite_markers"` // share URLs containing one of these use CanonicalURL
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultUserAgent is a desktop Chrome user agent accepted by the share pages
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Download: DownloadConfig{
			OutputDir:       "$HOME/Downloads/dy-extract",
			LogsDir:         "$HOME/Downloads/dy-extract/logs",
			MaxRetries:      2,
			RetryDelay:      2 * time.Second,
			ConcurrentLimit: 2,
			StrategyTimeout: 180 * time.Second,
			MinMediaBytes:   100,
			FirstChunkBytes: 4096,
			MaxBodyBytes:    1 << 30,
		},
		HTTP: HTTPConfig{
			Timeout:        30 * time.Second,
			UserAgent:      DefaultUserAgent,
			Referer:        "https://www.douyin.com/",
			AcceptLanguage: "zh-CN,zh;q=0.9",
		},
		Browser: BrowserConfig{
			Enabled:                  true,
			Headless:                 true,
			NavigationTimeout:        120 * time.Second,
			CaptureNavigationTimeout: 180 * time.Second,
			SettleTime:               5 * time.Second,
			ClickTimeout:             3 * time.Second,
			ClickWait:                2 * time.Second,
			WarmupURL:                "https://www.douyin.com/",
			WarmupTimeout:            10 * time.Second,
		},
		ExternalTool: ExternalToolConfig{
			Binary:         "yt-dlp",
			Format:         "bestvideo+bestaudio/best",
			MergeFormat:    "mp4",
			ChunkSize:      "10M",
			SocketTimeout:  30 * time.Second,
			Retries:        3,
			CanonicalURL:   "https://www.douyin.com/video/%s",
			RewriteMarkers: []string{"jingxuan"},
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   true,
			Method:  "osascript",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
