package cost

// Price is USD per million tokens for one model tier.
type Price struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultPricing covers the tiers the platform routes to. claude-code
// models are subscription-billed, so their marginal token cost is zero.
var defaultPricing = map[string]Price{
	"opus":               {15.00, 75.00},
	"sonnet":             {3.00, 15.00},
	"haiku":              {0.25, 1.25},
	"gemini-2.0-flash":   {0.10, 0.40},
	"gemini-2.5-pro":     {1.25, 10.00},
	"o3":                 {10.00, 40.00},
	"gpt-4o":             {2.50, 10.00},
	"claude-code:opus":   {0, 0},
	"claude-code:sonnet": {0, 0},
	"claude-code:haiku":  {0, 0},
}

// fallbackModel prices unrecognized model names. Unknown models are a
// routine occurrence (new tiers ship faster than configs update), so
// they are never an error.
const fallbackModel = "sonnet"

// downgradeLadder maps each tier to the next cheaper one. haiku maps to
// itself, which makes repeated downgrades idempotent at the floor.
var downgradeLadder = map[string]string{
	"opus":   "sonnet",
	"sonnet": "haiku",
	"haiku":  "haiku",
}

func (t *Tracker) price(model string) Price {
	if p, ok := t.pricing[model]; ok {
		return p
	}
	return t.pricing[fallbackModel]
}

// CalculateCost prices a call: linear in tokens, input and output rated
// separately.
func (t *Tracker) CalculateCost(model string, inputTokens, outputTokens int64) float64 {
	p := t.price(model)
	return p.InputPerMTok*float64(inputTokens)/1e6 + p.OutputPerMTok*float64(outputTokens)/1e6
}

// Downgrade returns the next tier down for a model. Models outside the
// ladder are returned unchanged; there is no cheaper tier to name.
func Downgrade(model string) string {
	if next, ok := downgradeLadder[model]; ok {
		return next
	}
	return model
}
