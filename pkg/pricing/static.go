package pricing

import "strings"

// staticDefaults is the compiled static pricing table, the second
// resolution tier. Rates are per 1,000 units in USD and cover the model
// families seen in production traffic. The dynamic feed supersedes these;
// the universal fallback backstops them.
//
// Keys are model prefixes: "gpt-4o" matches "gpt-4o-2024-08-06".
var staticDefaults = map[string]map[string]staticRate{
	"openai": {
		"gpt-4o-mini":   {input: 0.00015, output: 0.0006},
		"gpt-4o":        {input: 0.0025, output: 0.01},
		"gpt-4-turbo":   {input: 0.01, output: 0.03},
		"gpt-4":         {input: 0.03, output: 0.06},
		"gpt-3.5-turbo": {input: 0.0005, output: 0.0015},
		"o1-mini":       {input: 0.003, output: 0.012},
		"o1":            {input: 0.015, output: 0.06},
	},
	"anthropic": {
		"claude-3-opus":   {input: 0.015, output: 0.075},
		"claude-3-sonnet": {input: 0.003, output: 0.015},
		"claude-3-haiku":  {input: 0.00025, output: 0.00125},
		"claude-3-5":      {input: 0.003, output: 0.015},
	},
	"google": {
		"gemini-1.5-pro":   {input: 0.00125, output: 0.005},
		"gemini-1.5-flash": {input: 0.000075, output: 0.0003},
	},
	"mistral": {
		"mistral-large": {input: 0.002, output: 0.006},
		"mistral-small": {input: 0.0002, output: 0.0006},
	},
}

type staticRate struct {
	input  float64
	output float64
}

// lookupStatic finds a static default for (provider, model): exact model
// match first, then longest prefix match.
func lookupStatic(provider, model string) (staticRate, bool) {
	models, ok := staticDefaults[provider]
	if !ok {
		return staticRate{}, false
	}

	if rate, ok := models[model]; ok {
		return rate, true
	}

	var best string
	var bestRate staticRate
	for prefix, rate := range models {
		if len(prefix) > len(best) && strings.HasPrefix(model, prefix) {
			best = prefix
			bestRate = rate
		}
	}
	if best == "" {
		return staticRate{}, false
	}
	return bestRate, true
}
