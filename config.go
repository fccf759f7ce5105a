package spawner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/spawner/internal/env"
	"github.com/viant/spawner/model/task"
	"github.com/viant/spawner/policy"
	"github.com/viant/spawner/service/admission"
	"github.com/viant/spawner/service/aggregation"
	"github.com/viant/spawner/service/batch"
	"github.com/viant/spawner/service/dependency"
	"github.com/viant/spawner/service/dispatch"
	emem "github.com/viant/spawner/service/executor/memory"
	"github.com/viant/spawner/service/sandbox"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the engine configuration. The
// zero value of any section inherits the package defaults.
type Config struct {
	Admission   admission.Config       `json:"admission" yaml:"admission"`
	Retry       RetryConfig            `json:"retry" yaml:"retry"`
	Dispatch    DispatchConfig         `json:"dispatch" yaml:"dispatch"`
	Batch       BatchConfig            `json:"batch" yaml:"batch"`
	Merge       MergeConfig            `json:"merge" yaml:"merge"`
	Completion  CompletionConfig       `json:"completion" yaml:"completion"`
	Executor    ExecutorConfig         `json:"executor" yaml:"executor"`
	DefaultPool string                 `json:"defaultPool" yaml:"defaultPool"`
	Pools       map[string]*PoolConfig `json:"pools,omitempty" yaml:"pools,omitempty"`
}

// RetryConfig fills retry policies that omit a delay or backoff.
type RetryConfig struct {
	DelayMs int          `json:"delayMs" yaml:"delayMs"`
	Backoff task.Backoff `json:"backoff" yaml:"backoff"`
}

type DispatchConfig struct {
	// CallTimeoutMs bounds each patch, submit and history call.
	CallTimeoutMs int `json:"callTimeoutMs" yaml:"callTimeoutMs"`
	HistoryLimit  int `json:"historyLimit" yaml:"historyLimit"`
}

type BatchConfig struct {
	DependencyRecheckMs int `json:"dependencyRecheckMs" yaml:"dependencyRecheckMs"`
}

// MergeConfig configures the custom merge sandbox.
type MergeConfig struct {
	TimeoutMs       int      `json:"timeoutMs" yaml:"timeoutMs"`
	AllowedPackages []string `json:"allowedPackages" yaml:"allowedPackages"`
}

type CompletionConfig struct {
	QueueBuffer int `json:"queueBuffer" yaml:"queueBuffer"`
}

// ExecutorConfig configures the in-process executor built by WithHandler.
type ExecutorConfig struct {
	Workers     int `json:"workers" yaml:"workers"`
	QueueBuffer int `json:"queueBuffer" yaml:"queueBuffer"`
	TimeoutMs   int `json:"timeoutMs" yaml:"timeoutMs"`
}

// PoolConfig holds per-pool spawn permissions and execution parameters.
type PoolConfig struct {
	policy.Config `yaml:",inline"`
	Parameters    map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	sandboxConfig := sandbox.DefaultConfig()
	executorConfig := emem.DefaultConfig()
	return &Config{
		Admission: admission.DefaultConfig(),
		Retry:     RetryConfig{DelayMs: 1000, Backoff: task.BackoffExponential},
		Dispatch:  DispatchConfig{CallTimeoutMs: 10000, HistoryLimit: 10},
		Batch:     BatchConfig{DependencyRecheckMs: 500},
		Merge: MergeConfig{
			TimeoutMs:       int(sandboxConfig.Timeout / time.Millisecond),
			AllowedPackages: append([]string(nil), sandboxConfig.AllowedPackages...),
		},
		Completion:  CompletionConfig{QueueBuffer: aggregation.DefaultConfig().QueueBuffer},
		Executor:    ExecutorConfig{Workers: executorConfig.WorkerCount, QueueBuffer: executorConfig.QueueBuffer},
		DefaultPool: "main",
	}
}

// LoadConfig downloads a YAML config from URL (any afs supported scheme),
// expands ${env.KEY} references and decodes it over the defaults.
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to download config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal([]byte(env.Expand(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return ret, nil
}

// Validate returns an error describing the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Admission.MaxSpawnDepth < 0 {
		return fmt.Errorf("admission.maxSpawnDepth must be >= 0")
	}
	if c.Admission.MaxChildrenPerAgent <= 0 {
		return fmt.Errorf("admission.maxChildrenPerAgent must be > 0")
	}
	switch c.Retry.Backoff {
	case "", task.BackoffFixed, task.BackoffLinear, task.BackoffExponential:
	default:
		return fmt.Errorf("retry.backoff: unsupported %q", c.Retry.Backoff)
	}
	if c.Retry.DelayMs < 0 {
		return fmt.Errorf("retry.delayMs must be >= 0")
	}
	if c.Dispatch.CallTimeoutMs < 0 || c.Merge.TimeoutMs < 0 || c.Batch.DependencyRecheckMs < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.Executor.Workers < 0 {
		return fmt.Errorf("executor.workers must be >= 0")
	}
	for name := range c.Pools {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("pools: empty pool name")
		}
	}
	return nil
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Config) dispatchConfig() dispatch.Config {
	ret := dispatch.DefaultConfig()
	ret.CallTimeout = millis(c.Dispatch.CallTimeoutMs, ret.CallTimeout)
	ret.DefaultDelay = millis(c.Retry.DelayMs, ret.DefaultDelay)
	if c.Retry.Backoff != "" {
		ret.DefaultBackoff = c.Retry.Backoff
	}
	if c.DefaultPool != "" {
		ret.DefaultPool = c.DefaultPool
	}
	ret.MaxDepth = c.Admission.MaxSpawnDepth
	return ret
}

func (c *Config) dependencyConfig() dependency.Config {
	ret := dependency.DefaultConfig()
	ret.CallTimeout = millis(c.Dispatch.CallTimeoutMs, ret.CallTimeout)
	if c.Dispatch.HistoryLimit > 0 {
		ret.HistoryLimit = c.Dispatch.HistoryLimit
	}
	return ret
}

func (c *Config) batchConfig() batch.Config {
	ret := batch.DefaultConfig()
	ret.DependencyRecheck = millis(c.Batch.DependencyRecheckMs, ret.DependencyRecheck)
	return ret
}

func (c *Config) sandboxConfig() sandbox.Config {
	ret := sandbox.DefaultConfig()
	ret.Timeout = millis(c.Merge.TimeoutMs, ret.Timeout)
	if len(c.Merge.AllowedPackages) > 0 {
		ret.AllowedPackages = c.Merge.AllowedPackages
	}
	return ret
}

func (c *Config) aggregationConfig() aggregation.Config {
	ret := aggregation.DefaultConfig()
	if c.Completion.QueueBuffer > 0 {
		ret.QueueBuffer = c.Completion.QueueBuffer
	}
	return ret
}

func (c *Config) executorConfig() emem.Config {
	ret := emem.DefaultConfig()
	if c.Executor.Workers > 0 {
		ret.WorkerCount = c.Executor.Workers
	}
	if c.Executor.QueueBuffer > 0 {
		ret.QueueBuffer = c.Executor.QueueBuffer
	}
	ret.DefaultTimeout = millis(c.Executor.TimeoutMs, 0)
	return ret
}

func (c *Config) pools() map[string]*dispatch.Pool {
	ret := make(map[string]*dispatch.Pool, len(c.Pools))
	for name, pool := range c.Pools {
		if pool == nil {
			continue
		}
		cfg := pool.Config
		ret[name] = &dispatch.Pool{Policy: policy.FromConfig(&cfg), Parameters: pool.Parameters}
	}
	return ret
}
