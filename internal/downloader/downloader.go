// Package downloader 定义远端内容源的契约：把逻辑 key 解析为下载 URL，并拉取原始字节。
// 具体传输（HTTP、平台 SDK 等）由各 Provider 实现，通过 Register 注册后由 New 按配置构造。
package downloader

import (
	"context"
	"errors"
	"fmt"
)

// Provider 标识 Downloader 对接的后端类型。
type Provider string

const (
	ProviderHTTP Provider = "http"
	ProviderNull Provider = "null"
)

// Downloader 是缓存引擎依赖的唯一远端接口，实现必须允许并发调用。
type Downloader interface {
	// Provider 返回当前实现对接的后端。
	Provider() Provider
	// Init 完成认证/客户端构建等准备工作，必须先于 GetURL/Download 调用。
	Init(ctx context.Context) error
	// GetURL 将逻辑 key 解析为可下载的 URL；无法解析时返回 ErrURLEmpty。
	GetURL(ctx context.Context, key string) (string, error)
	// Download 拉取 URL 对应的全部字节；远端确认不存在时返回 ErrNotFound。
	Download(ctx context.Context, url string) ([]byte, error)
}

var (
	// ErrURLEmpty 表示 key 无法解析为有效 URL。
	ErrURLEmpty = errors.New("URL is null or empty")
	// ErrNotFound 表示远端明确返回对象不存在。
	ErrNotFound = errors.New("remote object not found")
	// ErrNotInitialized 表示在 Init 之前调用了其它方法。
	ErrNotInitialized = errors.New("downloader not initialized")
	// ErrNotImplemented 由 null provider 返回。
	ErrNotImplemented = errors.New("downloader not implemented")
)

// StatusError 记录远端返回的非预期 HTTP 状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
