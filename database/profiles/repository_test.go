package profiles

import (
	"reflect"
	"testing"

	models "dealforge/database/models_pkg"
)

func TestDeriveTags(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name  string
		stats buyerStats
		want  []string
	}{
		{
			"fresh buyer gets no tags",
			buyerStats{},
			nil,
		},
		{
			"big spender",
			buyerStats{TxnTotal: 25.0, AvgOfferRatio: f(1.0), AvgRounds: f(2.0), AcceptRate: f(0.5)},
			[]string{"high_value"},
		},
		{
			"lowball negotiator",
			buyerStats{AvgOfferRatio: f(0.5), AvgRounds: f(2.5), AcceptRate: f(0.3)},
			[]string{"price_sensitive"},
		},
		{
			"fast agreeable buyer",
			buyerStats{AvgOfferRatio: f(0.95), AvgRounds: f(1.0), AcceptRate: f(0.9)},
			[]string{"quick_decider", "easy_closer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveTags(&tt.stats)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("deriveTags = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTagsRoundTrip(t *testing.T) {
	profile := &models.BuyerProfile{BehaviorTags: marshalTags([]string{"high_value", "quick_decider"})}
	got := Tags(profile)
	if !reflect.DeepEqual(got, []string{"high_value", "quick_decider"}) {
		t.Errorf("Tags = %v", got)
	}

	if Tags(&models.BuyerProfile{}) != nil {
		t.Error("empty tags should decode to nil")
	}
	if Tags(&models.BuyerProfile{BehaviorTags: "not json"}) != nil {
		t.Error("malformed tags should decode to nil")
	}
	if marshalTags(nil) != "[]" {
		t.Errorf("marshalTags(nil) = %q, want []", marshalTags(nil))
	}
}

func TestOrDefault(t *testing.T) {
	v := 0.7
	if got := orDefault(&v, 1.0); got != 0.7 {
		t.Errorf("orDefault = %v, want 0.7", got)
	}
	if got := orDefault(nil, 1.0); got != 1.0 {
		t.Errorf("orDefault(nil) = %v, want 1.0", got)
	}
}
