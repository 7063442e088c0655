package downloader

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Options 汇总构造 Downloader 所需的参数，字段含义与配置文件 [Downloader] 段一致。
type Options struct {
	Provider       Provider
	BaseURL        string
	Username       string
	Password       string
	Proxy          string
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	Logger         *logrus.Logger
}

// Factory 根据 Options 构造一个尚未 Init 的 Downloader。
type Factory func(Options) (Downloader, error)

// Registration 绑定 Provider 与其工厂函数。
type Registration struct {
	Provider    Provider
	Description string
	Factory     Factory
}

// ErrProviderExists indicates a factory has already been registered for the provider.
var ErrProviderExists = errors.New("downloader provider already registered")

var factories sync.Map

func init() {
	MustRegister(Registration{
		Provider:    ProviderHTTP,
		Description: "plain HTTP(S) origin or CDN, key appended to BaseURL",
		Factory: func(opts Options) (Downloader, error) {
			return NewHTTP(opts), nil
		},
	})
	MustRegister(Registration{
		Provider:    ProviderNull,
		Description: "offline mode, every remote call fails",
		Factory: func(Options) (Downloader, error) {
			return Null{}, nil
		},
	})
}

// Validate ensures both provider and factory are present before registration.
func (r Registration) Validate() error {
	if normalizeProvider(r.Provider) == "" {
		return errors.New("provider required")
	}
	if r.Factory == nil {
		return errors.New("factory required")
	}
	return nil
}

// Register 注册一个 Provider 工厂，重复注册返回 ErrProviderExists。
func Register(reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	key := normalizeProvider(reg.Provider)
	if _, loaded := factories.LoadOrStore(key, reg); loaded {
		return fmt.Errorf("%w: %s", ErrProviderExists, key)
	}
	return nil
}

// MustRegister panics when registration fails; suitable for init().
func MustRegister(reg Registration) {
	if err := Register(reg); err != nil {
		panic(err)
	}
}

// Registered 判断 Provider 是否已注册。
func Registered(p Provider) bool {
	_, ok := factories.Load(normalizeProvider(p))
	return ok
}

// New 按 opts.Provider 构造 Downloader；未指定 Provider 时使用 http，与配置默认值一致。
func New(opts Options) (Downloader, error) {
	key := normalizeProvider(opts.Provider)
	if key == "" {
		key = string(ProviderHTTP)
	}
	value, ok := factories.Load(key)
	if !ok {
		return nil, fmt.Errorf("downloader provider %s is not registered", key)
	}
	reg := value.(Registration)
	return reg.Factory(opts)
}

func normalizeProvider(p Provider) string {
	return strings.ToLower(strings.TrimSpace(string(p)))
}
