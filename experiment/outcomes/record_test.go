package outcomes

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/rivalapexmediation/auction-server/auction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/xorcare/pointer"
)

func snapshots(n int) []auction.CandidateSnapshot {
	snaps := make([]auction.CandidateSnapshot, n)
	for i := range snaps {
		snaps[i] = auction.CandidateSnapshot{
			Adapter:   fmt.Sprintf("adapter-%02d", i),
			Status:    auction.StatusBid,
			CPM:       pointer.Float64(float64(i) + 0.5),
			LatencyMs: pointer.Int64(int64(10 * i)),
		}
	}
	return snaps
}

func TestEncodeCandidates(t *testing.T) {
	snaps := snapshots(20)
	full, err := json.Marshal(snaps)
	require.NoError(t, err)

	testCases := []struct {
		description string
		maxBytes    int
		truncated   bool
	}{
		{description: "Unlimited", maxBytes: 0},
		{description: "Fits exactly", maxBytes: len(full)},
		{description: "Too large", maxBytes: len(full) / 2, truncated: true},
		{description: "Tiny budget", maxBytes: 64, truncated: true},
	}

	for _, test := range testCases {
		encoded := EncodeCandidates(snaps, test.maxBytes)
		require.True(t, json.Valid(encoded), test.description)
		if test.maxBytes > 0 {
			assert.LessOrEqual(t, len(encoded), test.maxBytes, test.description)
		}
		if !test.truncated {
			assert.JSONEq(t, string(full), string(encoded), test.description)
			continue
		}
		assert.True(t, gjson.GetBytes(encoded, "truncated").Bool(), test.description)
		assert.Equal(t, int64(20), gjson.GetBytes(encoded, "total").Int(), test.description)
		kept := gjson.GetBytes(encoded, "items").Array()
		assert.Less(t, len(kept), 20, test.description)
		for i, item := range kept {
			assert.Equal(t, snaps[i].Adapter, item.Get("adapter").String(), "leading snapshots are kept in order")
		}
	}

	assert.Nil(t, EncodeCandidates(nil, 100))
	assert.Nil(t, EncodeCandidates(snaps, 10), "not even the wrapper fits")
}

func TestTruncateMetadata(t *testing.T) {
	small := json.RawMessage(`{"k":"v"}`)
	assert.Equal(t, small, TruncateMetadata(small, 100))
	assert.Equal(t, small, TruncateMetadata(small, 0))

	large := json.RawMessage(`{"blob":"` + strings.Repeat("x", 500) + `"}`)
	truncated := TruncateMetadata(large, 100)
	assert.JSONEq(t, fmt.Sprintf(`{"truncated":true,"originalBytes":%d}`, len(large)), string(truncated))

	assert.Nil(t, TruncateMetadata(large, 5))
}
