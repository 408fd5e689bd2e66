package llm

// price is USD per million tokens.
type price struct {
	input  float64
	output float64
}

var prices = map[string]price{
	// OpenAI
	"gpt-3.5-turbo":      {0.50, 1.50},
	"gpt-3.5-turbo-0125": {0.50, 1.50},
	"gpt-4o":             {2.50, 10.00},
	"gpt-4o-mini":        {0.15, 0.60},
	"gpt-4.1-mini":       {0.40, 1.60},

	// Anthropic
	"claude-3-haiku-20240307":   {0.25, 1.25},
	"claude-3-5-haiku-20241022": {0.80, 4.00},
	"claude-sonnet-4-20250514":  {3.00, 15.00},
}

// CalculateCost estimates the price of one call. Unknown models cost 0.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.input + float64(outputTokens)*p.output) / 1e6
}
