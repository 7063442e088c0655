// Package remote 通过 Downloader 获取远端版本标记并解码为版本字符串。
package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/any-hub/unicdn/internal/downloader"
	"github.com/any-hub/unicdn/internal/naming"
)

// Error 表示远端解析失败（URL 解析或下载），Op 取值 get_url / download。
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Resolver 负责把内容 subPath 映射为远端版本标记 key 并拉取其内容。
type Resolver struct {
	downloader downloader.Downloader
	strategy   naming.Strategy
}

// NewResolver 绑定 Downloader 与命名策略，两者在 Resolver 生命周期内不变。
func NewResolver(d downloader.Downloader, strategy naming.Strategy) *Resolver {
	return &Resolver{downloader: d, strategy: strategy}
}

// MarkerKey 将 subPath 的最后一段替换为版本标记文件名，例如 /files/a.bin → /files/a_version.txt。
func (r *Resolver) MarkerKey(ctx context.Context, subPath string) (string, error) {
	clean := strings.TrimSpace(strings.ReplaceAll(subPath, `\`, "/"))
	fileName := path.Base(clean)
	if clean == "" || fileName == "/" || fileName == "." {
		return "", fmt.Errorf("remote key %q has no file name", subPath)
	}

	marker, err := naming.MarkerName(ctx, r.strategy, fileName)
	if err != nil {
		return "", err
	}
	return path.Join(path.Dir(clean), marker), nil
}

// GetRemoteVersion 返回远端版本字符串。远端明确不存在（downloader.ErrNotFound）时返回空字符串；
// 其它失败一律包装为 *Error 返回，由调用方决定是否降级。
func (r *Resolver) GetRemoteVersion(ctx context.Context, subPath string) (string, error) {
	key, err := r.MarkerKey(ctx, subPath)
	if err != nil {
		return "", err
	}

	url, err := r.downloader.GetURL(ctx, key)
	if err != nil {
		return "", &Error{Op: "get_url", Key: key, Err: err}
	}

	data, err := r.downloader.Download(ctx, url)
	if err != nil {
		if errors.Is(err, downloader.ErrNotFound) {
			return "", nil
		}
		return "", &Error{Op: "download", Key: key, Err: err}
	}
	return string(data), nil
}
