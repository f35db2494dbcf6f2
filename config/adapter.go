package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/spf13/viper"
)

// Adapter is the per bid source configuration.
type Adapter struct {
	Enabled   bool     `mapstructure:"enabled"`
	Endpoint  string   `mapstructure:"endpoint"`
	TimeoutMs int      `mapstructure:"timeout_ms"`
	Formats   []string `mapstructure:"formats"`
	ExtraInfo string   `mapstructure:"extra_info"`
}

func (a Adapter) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

func normalizeAdapters(adapters map[string]Adapter) map[string]Adapter {
	normalized := make(map[string]Adapter, len(adapters))
	for name, a := range adapters {
		normalized[strings.ToLower(name)] = a
	}
	return normalized
}

func validateAdapters(adapters map[string]Adapter, errs []error) []error {
	for name, a := range adapters {
		if !a.Enabled {
			continue
		}
		if a.TimeoutMs <= 0 {
			errs = append(errs, fmt.Errorf("adapters.%s.timeout_ms must be positive. Got %d", name, a.TimeoutMs))
		}
		if a.Endpoint != "" && !govalidator.IsURL(a.Endpoint) {
			errs = append(errs, fmt.Errorf("adapters.%s.endpoint %q is not a valid URL", name, a.Endpoint))
		}
		if len(a.Formats) == 0 {
			errs = append(errs, fmt.Errorf("adapters.%s.formats must list at least one ad format", name))
		}
	}
	return errs
}

func setAdapterDefaults(v *viper.Viper) {
	v.SetDefault("adapters.openrtb.enabled", false)
	v.SetDefault("adapters.openrtb.endpoint", "")
	v.SetDefault("adapters.openrtb.timeout_ms", 200)
	v.SetDefault("adapters.openrtb.formats", []string{"banner", "interstitial", "rewarded", "native"})

	v.SetDefault("adapters.s2sjson.enabled", false)
	v.SetDefault("adapters.s2sjson.endpoint", "")
	v.SetDefault("adapters.s2sjson.timeout_ms", 150)
	v.SetDefault("adapters.s2sjson.formats", []string{"banner", "interstitial", "rewarded"})

	v.SetDefault("adapters.synthetic.enabled", true)
	v.SetDefault("adapters.synthetic.endpoint", "")
	v.SetDefault("adapters.synthetic.timeout_ms", 100)
	v.SetDefault("adapters.synthetic.formats", []string{"banner", "interstitial", "rewarded", "native"})
	v.SetDefault("adapters.synthetic.extra_info", `{"cpm":0.5,"latency_ms":20,"fill_rate":1}`)
}
