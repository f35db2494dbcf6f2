package exchange

import (
	"github.com/rivalapexmediation/auction-server/adapters"
	"github.com/rivalapexmediation/auction-server/adapters/openrtb"
	"github.com/rivalapexmediation/auction-server/adapters/s2sjson"
	"github.com/rivalapexmediation/auction-server/adapters/synthetic"
)

// Adapter names with a compiled in implementation.
const (
	AdapterOpenRTB   = "openrtb"
	AdapterS2SJSON   = "s2sjson"
	AdapterSynthetic = "synthetic"
)

// newAdapterBuilders returns the builders for all adapters.
func newAdapterBuilders() map[string]adapters.Builder {
	return map[string]adapters.Builder{
		AdapterOpenRTB:   openrtb.Builder,
		AdapterS2SJSON:   s2sjson.Builder,
		AdapterSynthetic: synthetic.Builder,
	}
}
