package normalize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TrustLevel is a reputation tier for a data source.
type TrustLevel int

const (
	TrustUnknown TrustLevel = iota
	TrustMedium
	TrustHigh
)

// Bonus returns the confidence points a tier adds.
func (l TrustLevel) Bonus() int {
	switch l {
	case TrustHigh:
		return 10
	case TrustMedium:
		return 5
	default:
		return 0
	}
}

// SourceTrust lists which sources are considered reputable.
type SourceTrust struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
}

// DefaultSourceTrust is used when no trust file is configured.
func DefaultSourceTrust() SourceTrust {
	return SourceTrust{
		High:   []string{"mls", "costar", "loopnet", "county_records"},
		Medium: []string{"crexi", "zillow", "realtor", "redfin", "tax_assessor"},
	}
}

// LoadSourceTrust reads tiers from a YAML file.
func LoadSourceTrust(path string) (SourceTrust, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceTrust{}, fmt.Errorf("read trust file: %w", err)
	}
	var trust SourceTrust
	if err := yaml.Unmarshal(data, &trust); err != nil {
		return SourceTrust{}, fmt.Errorf("decode trust file %s: %w", path, err)
	}
	return trust, nil
}

// Level classifies a source tag, case-insensitively.
func (t SourceTrust) Level(source string) TrustLevel {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return TrustUnknown
	}
	for _, s := range t.High {
		if strings.EqualFold(s, source) {
			return TrustHigh
		}
	}
	for _, s := range t.Medium {
		if strings.EqualFold(s, source) {
			return TrustMedium
		}
	}
	return TrustUnknown
}
