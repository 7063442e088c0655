package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/any-hub/unicdn/internal/downloader"
	"github.com/any-hub/unicdn/internal/naming"
)

var supportedLogLevels = map[string]struct{}{
	"trace": {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if level := strings.ToLower(strings.TrimSpace(g.LogLevel)); level != "" {
		if _, ok := supportedLogLevels[level]; !ok {
			return newFieldError("Global.LogLevel", "仅支持 trace/debug/info/warn/error")
		}
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	strategy, err := naming.Resolve(g.VersionStrategy, g.VersionSuffix)
	if err != nil {
		return newFieldError("Global.VersionStrategy", fmt.Sprintf("仅支持 %s", strings.Join(naming.Keys(), "/")))
	}
	if g.SyncInterval.DurationValue() < 0 {
		return newFieldError("Global.SyncInterval", "不能为负数")
	}
	if g.SyncConcurrency <= 0 {
		return newFieldError("Global.SyncConcurrency", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if err := c.validateDownloader(); err != nil {
		return err
	}

	seenNames := map[string]struct{}{}
	// seenPaths 记录每个资源占用的内容文件与版本标记路径，资源之间不得共享任何一个。
	seenPaths := map[string]string{}
	for i := range c.Resources {
		res := &c.Resources[i]
		if res.Name == "" {
			return newFieldError("Resource[].Name", "不能为空")
		}
		if strings.ContainsAny(res.Name, "/\\ ") {
			return newFieldError(resourceField(res.Name, "Name"), "不允许包含斜杠或空格")
		}
		if _, exists := seenNames[res.Name]; exists {
			return newFieldError(resourceField(res.Name, "Name"), "重复")
		}
		seenNames[res.Name] = struct{}{}

		clean, err := validateSubPath(res.Path)
		if err != nil {
			return fmt.Errorf("%s: %w", resourceField(res.Name, "Path"), err)
		}
		if other, exists := seenPaths[clean]; exists {
			return newFieldError(resourceField(res.Name, "Path"), fmt.Sprintf("与 %s 重复", other))
		}

		marker, err := naming.MarkerName(context.Background(), strategy, path.Base(clean))
		if err != nil {
			return fmt.Errorf("%s: %w", resourceField(res.Name, "Path"), err)
		}
		markerPath := path.Join(path.Dir(clean), marker)
		if other, exists := seenPaths[markerPath]; exists {
			return newFieldError(resourceField(res.Name, "Path"), fmt.Sprintf("版本标记 %s 与 %s 冲突", markerPath, other))
		}
		seenPaths[clean] = res.Name
		seenPaths[markerPath] = res.Name

		if res.RemotePath != "" {
			if _, err := validateSubPath(res.RemotePath); err != nil {
				return fmt.Errorf("%s: %w", resourceField(res.Name, "RemotePath"), err)
			}
		}
	}

	return nil
}

func (c *Config) validateDownloader() error {
	d := c.Downloader
	provider := downloader.Provider(strings.ToLower(strings.TrimSpace(d.Provider)))
	if provider == "" {
		provider = downloader.ProviderHTTP
	}
	if !downloader.Registered(provider) {
		return newFieldError("Downloader.Provider", fmt.Sprintf("未注册的 Provider: %s", d.Provider))
	}
	if provider != downloader.ProviderHTTP {
		return nil
	}

	if err := validateUpstream(d.BaseURL); err != nil {
		return fmt.Errorf("Downloader.BaseURL: %w", err)
	}
	if (d.Username == "") != (d.Password == "") {
		return newFieldError("Downloader.Username/Password", "必须同时提供或同时留空")
	}
	if d.Proxy != "" {
		if err := validateUpstream(d.Proxy); err != nil {
			return fmt.Errorf("Downloader.Proxy: %w", err)
		}
	}
	return nil
}

// validateSubPath 要求路径非空、不指向根目录且不通过 .. 越出根目录，返回以 / 开头的规范形式。
func validateSubPath(raw string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, `\`, "/"))
	if trimmed == "" {
		return "", errors.New("路径不能为空")
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", errors.New("路径不允许包含 ..")
		}
	}
	clean := path.Clean("/" + trimmed)
	if clean == "/" {
		return "", errors.New("路径不能指向根目录")
	}
	return clean, nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
