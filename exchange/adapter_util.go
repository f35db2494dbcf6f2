package exchange

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/golang/glog"

	"github.com/rivalapexmediation/auction-server/adapters"
	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/rivalapexmediation/auction-server/config"
)

// BuildAdapters builds every enabled adapter and freezes them into a registry.
func BuildAdapters(client *http.Client, cfg map[string]config.Adapter) (*adapters.Registry, []error) {
	return buildAdapters(client, cfg, newAdapterBuilders())
}

func buildAdapters(client *http.Client, cfg map[string]config.Adapter, builders map[string]adapters.Builder) (*adapters.Registry, []error) {
	var errs []error
	rb := adapters.NewRegistryBuilder()

	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		adapterCfg := cfg[name]
		if !adapterCfg.Enabled {
			continue
		}
		builder, found := builders[name]
		if !found {
			errs = append(errs, fmt.Errorf("%v: builder not registered", name))
			continue
		}

		formats, err := parseFormats(adapterCfg.Formats)
		if err != nil {
			errs = append(errs, fmt.Errorf("%v: %v", name, err))
			continue
		}

		adapter, err := builder(name, adapterCfg, client)
		if err != nil {
			errs = append(errs, fmt.Errorf("%v: %v", name, err))
			continue
		}

		desc := adapters.Descriptor{
			Name:    name,
			Formats: formats,
			Timeout: adapterCfg.Timeout(),
		}
		if _, err := rb.Register(desc, adapter); err != nil {
			errs = append(errs, fmt.Errorf("%v: %v", name, err))
		}
	}

	registry := rb.Build()
	if len(errs) == 0 {
		glog.Infof("Registered adapters: %v", registry.Names())
	}
	return registry, errs
}

func parseFormats(formats []string) ([]auction.AdFormat, error) {
	parsed := make([]auction.AdFormat, 0, len(formats))
	for _, f := range formats {
		format := auction.AdFormat(f)
		if !format.Valid() {
			return nil, fmt.Errorf("unknown ad format %q", f)
		}
		parsed = append(parsed, format)
	}
	return parsed, nil
}
