package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxLinkResponseSize = 1 << 20

var (
	// ErrInvalidConfig is returned by NewCMSSource for unusable settings.
	ErrInvalidConfig = errors.New("source: invalid cms configuration")
	// ErrNoDownloadLink is returned when the export response carries no link.
	ErrNoDownloadLink = errors.New("source: download_link missing from export response")
	// ErrCMSRequest is returned for a non-2xx CMS response.
	ErrCMSRequest = errors.New("source: cms request failed")
)

// CMSConfig holds the CMS session and where the download is stored.
type CMSConfig struct {
	BaseURL   string `validate:"required,url"`
	ExportURL string `validate:"required,url"`
	User      string `validate:"required"`
	Pass      string `validate:"required"`
	Group     string `validate:"required"`
	UserID    string `validate:"required"`
	SavePath  string `validate:"required"`
	Timeout   time.Duration
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c CMSConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CMSSource asks the CMS to generate the export, downloads it to SavePath
// and opens the downloaded file.
type CMSSource struct {
	config     CMSConfig
	cookie     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCMSSource validates cfg and builds the source.
func NewCMSSource(cfg CMSConfig, logger *zap.Logger) (*CMSSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &CMSSource{
		config:     cfg,
		cookie:     AuthCookie(cfg.User, cfg.Pass, cfg.Group, cfg.UserID),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "pnv_cms")),
	}, nil
}

// AuthCookie builds the CMS session cookie. The CMS expects the password as
// a hex SHA-1 digest.
func AuthCookie(user, pass, group, userID string) string {
	sum := sha1.Sum([]byte(pass))
	return fmt.Sprintf("pnv_cms_2_user=%s; pnv_cms_2_pass=%s; pnv_cms_2_group=%s; pnv_cms_2_user_id=%s",
		user, hex.EncodeToString(sum[:]), group, userID)
}

// Fetch downloads a fresh export and opens it.
func (s *CMSSource) Fetch(ctx context.Context) (io.ReadCloser, error) {
	link, err := s.downloadLink(ctx)
	if err != nil {
		return nil, err
	}
	fileURL := strings.TrimRight(s.config.BaseURL, "/") + "/" + strings.TrimLeft(link, "/")
	if err := s.download(ctx, fileURL); err != nil {
		return nil, err
	}
	f, err := os.Open(s.config.SavePath)
	if err != nil {
		return nil, fmt.Errorf("source: open download: %w", err)
	}
	return f, nil
}

func (s *CMSSource) downloadLink(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.ExportURL, strings.NewReader(url.Values{}.Encode()))
	if err != nil {
		return "", fmt.Errorf("source: failed to create export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cookie", s.cookie)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: export: %v", ErrCMSRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: export: HTTP %d", ErrCMSRequest, resp.StatusCode)
	}

	var body struct {
		DownloadLink string `json:"download_link"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLinkResponseSize)).Decode(&body); err != nil {
		return "", fmt.Errorf("source: failed to decode export response: %w", err)
	}
	if body.DownloadLink == "" {
		return "", ErrNoDownloadLink
	}
	return body.DownloadLink, nil
}

// download streams the file next to SavePath and renames it into place.
func (s *CMSSource) download(ctx context.Context, fileURL string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("source: failed to create download request: %w", err)
	}
	req.Header.Set("Cookie", s.cookie)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: download: %v", ErrCMSRequest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: download: HTTP %d", ErrCMSRequest, resp.StatusCode)
	}

	dir := filepath.Dir(s.config.SavePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("source: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".products.*.csv")
	if err != nil {
		return fmt.Errorf("source: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return fmt.Errorf("source: save download: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("source: save download: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.config.SavePath); err != nil {
		return fmt.Errorf("source: save download: %w", err)
	}

	s.logger.Info("Downloaded product export",
		zap.String("path", s.config.SavePath),
		zap.Int64("bytes", n),
	)
	return nil
}
