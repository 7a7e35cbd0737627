package inference

// modelEntry is one known model's cost/tier metadata, trimmed from the
// teacher's far larger Model struct (internal/models/catalog.go) down to
// the fields C6's governance and cost-analytics paths actually need.
type modelEntry struct {
	Tier          string
	InputPrice    float64 // USD per million input tokens
	OutputPrice   float64 // USD per million output tokens
	PeerFallback  string  // substituted when this model is unknown-deprecated
}

// catalog is the known-model table used to validate suggested models in
// request_inference_params and to price cost analytics. Grounded on the
// teacher's registerBuiltinModels, trimmed to the subset C6 prices.
var catalog = map[string]modelEntry{
	"claude-opus-4":            {Tier: "flagship", InputPrice: 15.0, OutputPrice: 75.0, PeerFallback: "claude-3-5-sonnet-latest"},
	"claude-3-5-sonnet-latest": {Tier: "standard", InputPrice: 3.0, OutputPrice: 15.0, PeerFallback: "claude-3-5-haiku-latest"},
	"claude-3-5-haiku-latest":  {Tier: "fast", InputPrice: 0.8, OutputPrice: 4.0, PeerFallback: "claude-3-5-haiku-latest"},
	"gpt-4o":                   {Tier: "flagship", InputPrice: 5.0, OutputPrice: 15.0, PeerFallback: "gpt-4o-mini"},
	"gpt-4o-mini":              {Tier: "fast", InputPrice: 0.15, OutputPrice: 0.6, PeerFallback: "gpt-4o-mini"},
}

// resolveModel reports whether model is known, and if not, the peer it
// should be substituted with (spec §4.6: "Unknown models -> either
// modified substituting a known peer or denied"). An empty model is
// reported known and resolves to defaultModel (no substitution requested).
func resolveModel(model, defaultModel string) (known bool, substitute string) {
	if model == "" {
		return true, defaultModel
	}
	if _, ok := catalog[model]; ok {
		return true, model
	}
	if len(catalog) == 0 {
		return false, defaultModel
	}
	// Substitute toward the default model's tier peer when the default is
	// known, otherwise pick any known peer deterministically.
	if entry, ok := catalog[defaultModel]; ok {
		return false, entry.PeerFallback
	}
	return false, "claude-3-5-haiku-latest"
}

func priceFor(model string) (input, output float64, ok bool) {
	entry, found := catalog[model]
	if !found {
		return 0, 0, false
	}
	return entry.InputPrice, entry.OutputPrice, true
}
