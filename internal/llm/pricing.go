package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"ai-cycle-planner/internal/shared"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var defaultPricingYAML []byte

// ModelPrice is the USD cost per million tokens.
type ModelPrice struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// PriceTable maps model names to prices.
type PriceTable struct {
	Models map[string]ModelPrice `yaml:"models"`
}

// DefaultPriceTable returns the embedded price table.
func DefaultPriceTable() *PriceTable {
	t, err := parsePriceTable(defaultPricingYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded pricing table is invalid: %v", err))
	}
	return t
}

// LoadPriceTable reads a price table from path, or returns the embedded one
// when path is empty.
func LoadPriceTable(path string) (*PriceTable, error) {
	if path == "" {
		return DefaultPriceTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}
	return parsePriceTable(data)
}

func parsePriceTable(data []byte) (*PriceTable, error) {
	var t PriceTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse pricing table: %w", err)
	}
	if t.Models == nil {
		t.Models = map[string]ModelPrice{}
	}
	return &t, nil
}

// Estimate returns the cost of usage, falling back to fallback when the
// provider reported no tokens or the model is not priced. Model names match by
// exact name first, then by the longest priced prefix ("gemini-1.5-flash-002").
func (t *PriceTable) Estimate(usage shared.TokenUsage, fallback float64) float64 {
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		return fallback
	}
	price, ok := t.lookup(usage.Model)
	if !ok {
		return fallback
	}
	return (float64(usage.PromptTokens)*price.Input + float64(usage.CompletionTokens)*price.Output) / 1_000_000
}

func (t *PriceTable) lookup(model string) (ModelPrice, bool) {
	if p, ok := t.Models[model]; ok {
		return p, true
	}
	best, found := "", false
	for name := range t.Models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best, found = name, true
		}
	}
	return t.Models[best], found
}
