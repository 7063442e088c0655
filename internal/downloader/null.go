package downloader

import "context"

// Null 是离线模式下的 Downloader：Init 成功，其余调用一律返回 ErrNotImplemented。
// 本地缓存读取不受影响，更新会失败。
type Null struct{}

func (Null) Provider() Provider { return ProviderNull }

func (Null) Init(context.Context) error { return nil }

func (Null) GetURL(context.Context, string) (string, error) {
	return "", ErrNotImplemented
}

func (Null) Download(context.Context, string) ([]byte, error) {
	return nil, ErrNotImplemented
}
