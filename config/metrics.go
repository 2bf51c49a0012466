package config

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否注册 Prometheus 指标
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace 指标名前缀
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "nest",
	}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	return nil
}
