package naming

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultKey 是未配置 VersionStrategy 时使用的策略。
const DefaultKey = "suffix"

// Definition 描述一个具名策略，Build 接收配置中的后缀生成最终 Strategy。
type Definition struct {
	Key         string
	Description string
	Build       func(suffix string) Strategy
}

var globalRegistry = newRegistry()

type registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func newRegistry() *registry {
	return &registry{defs: make(map[string]Definition)}
}

func init() {
	MustRegister(Definition{
		Key:         "suffix",
		Description: "append the suffix to the full file name",
		Build:       Suffix,
	})
	MustRegister(Definition{
		Key:         "stem",
		Description: "strip the extension, then append the suffix",
		Build:       Stem,
	})
	MustRegister(Definition{
		Key:         "hidden",
		Description: "dot-prefixed file name followed by the suffix",
		Build:       Hidden,
	})
}

// Register 将策略加入全局注册表，重复键返回错误。
func Register(def Definition) error {
	return globalRegistry.register(def)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(def Definition) {
	if err := Register(def); err != nil {
		panic(err)
	}
}

// Lookup 返回指定键的策略定义（大小写不敏感）。
func Lookup(key string) (Definition, bool) {
	return globalRegistry.lookup(key)
}

// Keys 返回所有已注册策略的键值，按字典序排列。
func Keys() []string {
	return globalRegistry.keys()
}

// Resolve 按键构造策略；suffix 为空时使用 DefaultSuffix。
func Resolve(key, suffix string) (Strategy, error) {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	def, ok := Lookup(key)
	if !ok {
		return nil, fmt.Errorf("version strategy %s is not registered", key)
	}
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return def.Build(suffix), nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(def Definition) error {
	key := normalizeKey(def.Key)
	if key == "" {
		return fmt.Errorf("strategy key is required")
	}
	if def.Build == nil {
		return fmt.Errorf("strategy %s: build func is required", key)
	}
	def.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[key]; exists {
		return fmt.Errorf("strategy %s already registered", key)
	}
	r.defs[key] = def
	return nil
}

func (r *registry) lookup(key string) (Definition, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Definition{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[normalized]
	return def, ok
}

func (r *registry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.defs))
	for key := range r.defs {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}
