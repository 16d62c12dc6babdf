package config

import (
	"strings"
	"time"
)

// MediaConfig locates media directories and the external toolchain.
type MediaConfig struct {
	VideosDir    string `env:"MEDIA_VIDEOS_DIR"    envDefault:"videos"`
	ProcessedDir string `env:"MEDIA_PROCESSED_DIR" envDefault:"processed"`
	MusicDir     string `env:"MEDIA_MUSIC_DIR"     envDefault:"musicas"`
	IngestDir    string `env:"MEDIA_INGEST_DIR"    envDefault:"ingest"`

	// SessionFile is the cookie jar handed to the downloader. Empty disables the check.
	SessionFile string `env:"MEDIA_SESSION_FILE" envDefault:""`

	// PublicURLPrefix is prepended to output filenames for the url result format.
	PublicURLPrefix string `env:"MEDIA_PUBLIC_URL_PREFIX" envDefault:"/videos/"`

	YTDLPPath   string `env:"MEDIA_YTDLP_PATH"   envDefault:"yt-dlp"`
	FFmpegPath  string `env:"MEDIA_FFMPEG_PATH"  envDefault:"ffmpeg"`
	FFprobePath string `env:"MEDIA_FFPROBE_PATH" envDefault:"ffprobe"`

	DownloadTimeout time.Duration `env:"MEDIA_DOWNLOAD_TIMEOUT" envDefault:"5m"`
	RenderTimeout   time.Duration `env:"MEDIA_RENDER_TIMEOUT"   envDefault:"15m"`
	// DownloadsPerMinute paces outbound downloads; zero disables pacing.
	DownloadsPerMinute int `env:"MEDIA_DOWNLOAD_RPM" envDefault:"30"`
	// AllowedSourceDomains restricts download URLs by registrable domain. Empty allows any host.
	AllowedSourceDomains []string `env:"MEDIA_ALLOWED_SOURCE_DOMAINS" envSeparator:","`

	AudioGainDB float64 `env:"MEDIA_AUDIO_GAIN_DB" envDefault:"6"`
}

// Sanitize applies guardrails to media configuration values.
func (c *MediaConfig) Sanitize() {
	if !strings.HasSuffix(c.PublicURLPrefix, "/") {
		c.PublicURLPrefix += "/"
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 5 * time.Minute
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 15 * time.Minute
	}
	if c.DownloadsPerMinute < 0 {
		c.DownloadsPerMinute = 0
	}
	domains := c.AllowedSourceDomains[:0]
	for _, d := range c.AllowedSourceDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	c.AllowedSourceDomains = domains
}
