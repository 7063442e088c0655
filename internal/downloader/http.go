package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	defaultUserAgent = "unicdn/1.0"
	probeTimeout     = time.Second
)

// HTTPDownloader 将 key 拼接到 BaseURL 之后作为下载地址，GET 拉取内容。
// 网络错误与 5xx/429 按指数退避重试，404 直接返回 ErrNotFound。
type HTTPDownloader struct {
	opts   Options
	logger *logrus.Logger

	mu     sync.RWMutex
	base   *url.URL
	client *http.Client
}

// NewHTTP 构造尚未初始化的 HTTPDownloader。
func NewHTTP(opts Options) *HTTPDownloader {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &HTTPDownloader{opts: opts, logger: logger}
}

func (d *HTTPDownloader) Provider() Provider {
	return ProviderHTTP
}

// Init 解析 BaseURL/Proxy 并构建共享 http.Client。
func (d *HTTPDownloader) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	base, err := parseHTTPURL(d.opts.BaseURL)
	if err != nil {
		return fmt.Errorf("base url: %w", err)
	}

	var proxyURL *url.URL
	if d.opts.Proxy != "" {
		proxyURL, err = parseHTTPURL(d.opts.Proxy)
		if err != nil {
			return fmt.Errorf("proxy url: %w", err)
		}
	}

	d.mu.Lock()
	d.base = base
	d.client = NewHTTPClient(d.opts.Timeout, proxyURL)
	d.mu.Unlock()
	return nil
}

// GetURL 返回 BaseURL + "/" + key，key 缺少前导斜杠时自动补齐。
func (d *HTTPDownloader) GetURL(ctx context.Context, key string) (string, error) {
	base, _, err := d.state()
	if err != nil {
		return "", err
	}

	key = strings.TrimSpace(key)
	if key == "" || key == "/" {
		return "", ErrURLEmpty
	}
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}

	resolved := *base
	resolved.Path = strings.TrimSuffix(base.Path, "/") + key
	resolved.RawPath = ""
	result := resolved.String()
	if result == "" {
		return "", ErrURLEmpty
	}
	return result, nil
}

// Download 拉取 rawURL 的全部字节。
func (d *HTTPDownloader) Download(ctx context.Context, rawURL string) ([]byte, error) {
	_, client, err := d.state()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rawURL) == "" {
		return nil, ErrURLEmpty
	}

	var body []byte
	operation := func() error {
		data, err := d.fetch(ctx, client, rawURL)
		if err != nil {
			return err
		}
		body = data
		return nil
	}
	notify := func(err error, wait time.Duration) {
		d.logger.WithFields(logrus.Fields{
			"action":   "download_retry",
			"provider": string(ProviderHTTP),
			"url":      rawURL,
			"wait_ms":  wait.Milliseconds(),
		}).Warn(err.Error())
	}

	if err := backoff.RetryNotify(operation, d.retryPolicy(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

// Reachable 以 HEAD 请求探测 rawURL 是否可访问，超时时间固定为 1s。
func (d *HTTPDownloader) Reachable(ctx context.Context, rawURL string) bool {
	_, client, err := d.state()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, http.NoBody)
	if err != nil {
		return false
	}
	d.decorate(req)
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest
}

func (d *HTTPDownloader) fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	d.decorate(req)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body from %s: %w", rawURL, err)
		}
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%s: %w", rawURL, ErrNotFound))
	case isRetryableStatus(resp.StatusCode):
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	default:
		return nil, backoff.Permanent(&StatusError{URL: rawURL, StatusCode: resp.StatusCode})
	}
}

func (d *HTTPDownloader) decorate(req *http.Request) {
	req.Header.Set("User-Agent", d.opts.UserAgent)
	if d.opts.Username != "" && d.opts.Password != "" {
		req.SetBasicAuth(d.opts.Username, d.opts.Password)
	}
}

func (d *HTTPDownloader) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.opts.InitialBackoff
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(d.opts.MaxRetries)), ctx)
}

func (d *HTTPDownloader) state() (*url.URL, *http.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.base == nil || d.client == nil {
		return nil, nil, ErrNotInitialized
	}
	return d.base, d.client, nil
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func parseHTTPURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("url is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("only http/https is supported: %s", raw)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("missing host: %s", raw)
	}
	return parsed, nil
}
