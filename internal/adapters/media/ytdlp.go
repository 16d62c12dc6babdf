package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/cutline/cutline-jobs/internal/core"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

var _ core.Downloader = (*YTDLP)(nil)

// YTDLPOptions configures a YTDLP downloader.
type YTDLPOptions struct {
	Binary    string // defaults to "yt-dlp"
	OutputDir string // required
	// Timeout bounds one download.
	Timeout time.Duration
	// RequestsPerMinute paces outbound downloads; zero disables pacing.
	RequestsPerMinute int
	// AllowedDomains restricts sources by registrable domain; empty allows any host.
	AllowedDomains []string
	Runner         CommandRunner
	Logger         *slog.Logger
}

// YTDLP downloads remote videos with yt-dlp.
type YTDLP struct {
	binary    string
	outputDir string
	timeout   time.Duration
	limiter   *rate.Limiter
	allowed   map[string]struct{}
	runner    CommandRunner
	logger    *slog.Logger
}

// NewYTDLP creates a downloader.
func NewYTDLP(opts YTDLPOptions) (*YTDLP, error) {
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, errors.New("yt-dlp: output dir is required")
	}
	d := &YTDLP{
		binary:    opts.Binary,
		outputDir: opts.OutputDir,
		timeout:   opts.Timeout,
		runner:    opts.Runner,
		logger:    opts.Logger,
	}
	if d.binary == "" {
		d.binary = "yt-dlp"
	}
	if d.runner == nil {
		d.runner = ExecRunner{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("component", "downloader")
	if opts.RequestsPerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	if len(opts.AllowedDomains) > 0 {
		d.allowed = make(map[string]struct{}, len(opts.AllowedDomains))
		for _, dom := range opts.AllowedDomains {
			if dom = strings.ToLower(strings.TrimSpace(dom)); dom != "" {
				d.allowed[dom] = struct{}{}
			}
		}
	}
	return d, nil
}

// Download fetches rawURL into the output directory and returns the local path.
func (d *YTDLP) Download(ctx context.Context, rawURL, credentialsFile string) (string, error) {
	if err := d.checkSource(rawURL); err != nil {
		return "", err
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeCanceled, "waiting for download slot")
		}
	}
	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	args := []string{"--no-warnings", "--no-progress", "-f", "mp4",
		"-o", filepath.Join(d.outputDir, "%(title)s.%(ext)s"),
		"--print", "after_move:filepath",
	}
	if credentialsFile != "" {
		args = append(args, "--cookies", credentialsFile)
	}
	args = append(args, rawURL)

	start := time.Now()
	out, err := d.runner.Run(ctx, d.binary, args...)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeExternalFailure, "remote asset unavailable: %s", rawURL)
	}

	path := lastLine(string(out))
	if path == "" {
		return "", apperrors.ExternalFailuref("remote asset unavailable: %s: downloader reported no file", rawURL)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.ExternalFailuref("downloaded file not found: %s", path)
		}
		return "", fmt.Errorf("stat download: %w", err)
	}
	d.logger.Info("download finished", "path", path, "duration_ms", time.Since(start).Milliseconds())
	return path, nil
}

func (d *YTDLP) checkSource(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return apperrors.ValidationField("url", "url must be an absolute http(s) URL")
	}
	if d.allowed == nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		domain = host
	}
	if _, ok := d.allowed[domain]; ok {
		return nil
	}
	return apperrors.ValidationField("url", fmt.Sprintf("source domain %s is not allowed", domain))
}
