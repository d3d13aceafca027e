// Package rewards holds the versioned referral reward table.
package rewards

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"hivox/internal/models"
)

// AmountPrecision is the number of fractional digits kept on credited
// amounts (the token's minor unit).
const AmountPrecision = 18

// Level is the percentage credited to the ancestor at a given depth
type Level struct {
	Level      int             `yaml:"level" json:"level"`
	Percentage decimal.Decimal `yaml:"-" json:"percentage"`
}

// Table is an explicit, versioned reward schedule
type Table struct {
	Version string  `json:"version"`
	Levels  []Level `json:"levels"`
}

// Default is the canonical 10/5/2 schedule
func Default() Table {
	return Table{
		Version: "v2",
		Levels: []Level{
			{Level: 1, Percentage: decimal.NewFromInt(10)},
			{Level: 2, Percentage: decimal.NewFromInt(5)},
			{Level: 3, Percentage: decimal.NewFromInt(2)},
		},
	}
}

type fileTable struct {
	Version string `yaml:"version"`
	Levels  []struct {
		Level      int    `yaml:"level"`
		Percentage string `yaml:"percentage"`
	} `yaml:"levels"`
}

// Load reads a table from a YAML file. An empty path yields Default().
func Load(path string) (Table, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read reward table: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML reward table
func Parse(raw []byte) (Table, error) {
	var ft fileTable
	if err := yaml.UnmarshalStrict(raw, &ft); err != nil {
		return Table{}, fmt.Errorf("failed to parse reward table: %w", err)
	}

	table := Table{Version: ft.Version}
	for _, l := range ft.Levels {
		pct, err := decimal.NewFromString(l.Percentage)
		if err != nil {
			return Table{}, fmt.Errorf("level %d: invalid percentage %q: %w", l.Level, l.Percentage, err)
		}
		table.Levels = append(table.Levels, Level{Level: l.Level, Percentage: pct})
	}

	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	return table, nil
}

// Validate checks levels are 1..n contiguous, n <= MaxReferralLevels and
// every percentage is in (0, 100].
func (t Table) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("reward table version is required")
	}
	if len(t.Levels) == 0 || len(t.Levels) > models.MaxReferralLevels {
		return fmt.Errorf("reward table must define 1..%d levels, got %d", models.MaxReferralLevels, len(t.Levels))
	}

	hundred := decimal.NewFromInt(100)
	for i, l := range t.Levels {
		if l.Level != i+1 {
			return fmt.Errorf("reward table levels must be contiguous from 1, got level %d at position %d", l.Level, i+1)
		}
		if !l.Percentage.IsPositive() || l.Percentage.GreaterThan(hundred) {
			return fmt.Errorf("level %d: percentage %s out of range", l.Level, l.Percentage)
		}
	}
	return nil
}

// Depth is the number of ancestor levels that earn a reward
func (t Table) Depth() int {
	return len(t.Levels)
}

// Percentage returns the percentage for a level, false when the level is not paid
func (t Table) Percentage(level int) (decimal.Decimal, bool) {
	if level < 1 || level > len(t.Levels) {
		return decimal.Zero, false
	}
	return t.Levels[level-1].Percentage, true
}

// Reward computes amount * pct / 100 truncated to AmountPrecision digits
func (t Table) Reward(level int, amount decimal.Decimal) (decimal.Decimal, bool) {
	pct, ok := t.Percentage(level)
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(pct).Shift(-2).Truncate(AmountPrecision), true
}
