package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：日志、缓存根目录、版本标记命名与同步节奏。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	VersionStrategy string   `mapstructure:"VersionStrategy"`
	VersionSuffix   string   `mapstructure:"VersionSuffix"`
	SyncInterval    Duration `mapstructure:"SyncInterval"`
	SyncConcurrency int      `mapstructure:"SyncConcurrency"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// DownloaderConfig 决定远端内容从哪里、以什么身份获取。
type DownloaderConfig struct {
	Provider  string `mapstructure:"Provider"`
	BaseURL   string `mapstructure:"BaseURL"`
	Username  string `mapstructure:"Username"`
	Password  string `mapstructure:"Password"`
	Proxy     string `mapstructure:"Proxy"`
	UserAgent string `mapstructure:"UserAgent"`
}

// ResourceConfig 描述一个需要保持最新的缓存资源。
type ResourceConfig struct {
	Name       string `mapstructure:"Name"`
	Path       string `mapstructure:"Path"`
	RemotePath string `mapstructure:"RemotePath"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig     `mapstructure:",squash"`
	Downloader DownloaderConfig `mapstructure:"Downloader"`
	Resources  []ResourceConfig `mapstructure:"Resource"`
}

// HasCredentials 表示是否配置了完整的上游凭证。
func (d DownloaderConfig) HasCredentials() bool {
	return d.Username != "" && d.Password != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (d DownloaderConfig) AuthMode() string {
	if d.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// EffectiveRemotePath 返回远端 key，未配置时与本地路径一致。
func (r ResourceConfig) EffectiveRemotePath() string {
	if strings.TrimSpace(r.RemotePath) == "" {
		return r.Path
	}
	return r.RemotePath
}

// ResourceNames 返回所有资源名称，供启动日志使用。
func ResourceNames(resources []ResourceConfig) []string {
	if len(resources) == 0 {
		return nil
	}
	names := make([]string, len(resources))
	for i, res := range resources {
		names[i] = res.Name
	}
	return names
}
