package mediarelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"reelcast/internal/config"
	"reelcast/internal/logging"
	"reelcast/internal/services"
)

const (
	downloadProvider = "media"
	storageProvider  = "storage"
	defaultTimeout   = 2 * time.Minute
	defaultMediaType = "video/mp4"
)

// Config holds bucket and download settings.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKey       string
	SecretKey       string
	PublicBaseURL   string
	DownloadTimeout time.Duration
}

// FromConfig extracts relay settings from the application config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Bucket:          cfg.Storage.Bucket,
		Prefix:          cfg.Storage.Prefix,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKey:       cfg.Storage.AccessKey,
		SecretKey:       cfg.Storage.SecretKey,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		DownloadTimeout: time.Duration(cfg.Storage.DownloadTimeoutSeconds) * time.Second,
	}
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// Uploader is the subset of the S3 client the relay needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client. Explicit credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	if !cfg.Enabled() {
		return nil, services.Wrap(services.ErrConfiguration, "mediarelay", "s3 client", "storage.bucket is required", nil)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Relay downloads provider media and uploads it to the bucket.
type Relay struct {
	cfg      Config
	uploader Uploader
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithHTTPClient overrides the client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Relay) {
		if client != nil {
			r.client = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logging.NewComponentLogger(logger, "mediarelay")
	}
}

// New constructs a relay around an existing uploader.
func New(cfg Config, uploader Uploader, opts ...Option) (*Relay, error) {
	if !cfg.Enabled() {
		return nil, services.Wrap(services.ErrConfiguration, "mediarelay", "init", "storage.bucket is required", nil)
	}
	if uploader == nil {
		return nil, errors.New("mediarelay: uploader is nil")
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultTimeout
	}
	r := &Relay{
		cfg:      cfg,
		uploader: uploader,
		client:   &http.Client{},
		logger:   logging.NewComponentLogger(nil, "mediarelay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Open builds the S3 client from cfg and wraps it in a Relay.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Relay, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, client, opts...)
}

// ObjectKey builds the relative key for one stage's output of a workflow.
func ObjectKey(kind, workflowID, stage string) string {
	return fmt.Sprintf("%s/%s/%s.mp4", kind, workflowID, stage)
}

func (r *Relay) fullKey(key string) string {
	if r.cfg.Prefix == "" {
		return strings.TrimPrefix(key, "/")
	}
	return strings.TrimSuffix(r.cfg.Prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

// PublicURL returns the stable URL for a relative key.
func (r *Relay) PublicURL(key string) string {
	full := r.fullKey(key)
	switch {
	case r.cfg.PublicBaseURL != "":
		return strings.TrimSuffix(r.cfg.PublicBaseURL, "/") + "/" + full
	case r.cfg.Endpoint != "":
		return strings.TrimSuffix(r.cfg.Endpoint, "/") + "/" + r.cfg.Bucket + "/" + full
	default:
		region := r.cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", r.cfg.Bucket, region, full)
	}
}

// Relay copies sourceURL into the bucket under key and returns its public URL.
// Download failures are classified like provider errors; upload failures are
// transient.
func (r *Relay) Relay(ctx context.Context, sourceURL, key string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", services.Wrap(services.ErrValidation, "mediarelay", "relay", "source url required", nil)
	}
	if strings.TrimSpace(key) == "" {
		return "", services.Wrap(services.ErrValidation, "mediarelay", "relay", "object key required", nil)
	}
	start := time.Now()

	tmp, err := os.CreateTemp("", "reelcast-relay-*.mp4")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, contentType, err := r.download(ctx, sourceURL, tmp)
	if err != nil {
		return "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind temp file: %w", err)
	}

	fullKey := r.fullKey(key)
	_, err = r.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.cfg.Bucket),
		Key:           aws.String(fullKey),
		Body:          tmp,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", services.NewTransportError(storageProvider, "upload", err)
	}

	publicURL := r.PublicURL(key)
	r.logger.Info("media relayed",
		logging.String("key", fullKey),
		logging.Int64("bytes", size),
		logging.Duration("elapsed", time.Since(start)),
		logging.String("public_url", publicURL),
	)
	return publicURL, nil
}

func (r *Relay) download(ctx context.Context, sourceURL string, dst io.Writer) (int64, string, error) {
	dlCtx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, "", services.NewPermanentError(downloadProvider, "download", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, "", services.NewTransportError(downloadProvider, "download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, "", services.NewStatusError(downloadProvider, "download", resp.StatusCode, string(snippet))
	}
	size, err := io.Copy(dst, resp.Body)
	if err != nil {
		return 0, "", services.NewTransportError(downloadProvider, "download", err)
	}
	if size == 0 {
		return 0, "", services.NewPermanentError(downloadProvider, "download", errors.New("empty media body"))
	}
	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = defaultMediaType
	}
	return size, contentType, nil
}
