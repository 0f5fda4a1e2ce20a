package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeZipCode(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ga 30309-1234", "30309"},
		{"abc", "00000"},
		{"", "00000"},
		{"123", "00123"},
		{" 02134 ", "02134"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeZipCode(tt.raw), "zip %q", tt.raw)
	}
}

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"georgia", "GA"},
		{"Georgia", "GA"},
		{"  new   york ", "NY"},
		{"xx", "XX"},
		{"ga", "GA"},
		{"Ontario", "ONTARIO"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeState(tt.raw), "state %q", tt.raw)
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"123  Main Street, Suite 4", "123 main st ste 4"},
		{"123 Main St.", "123 main st"},
		{"45 North Peachtree Avenue NE", "45 n peachtree ave ne"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAddress(tt.raw), "address %q", tt.raw)
	}
}

func TestNormalizeAddressEquivalentSpellings(t *testing.T) {
	assert.Equal(t, NormalizeAddress("9 Elm Boulevard"), NormalizeAddress("9 elm blvd."))
}

func TestNormalizePropertyType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Multi-Family", TypeApartment},
		{"  Apartments ", TypeApartment},
		{"Warehouse", TypeIndustrial},
		{"Mixed Use", TypeMixedUse},
		{"Hotel", TypeHospitality},
		{" Self  Storage ", "self storage"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePropertyType(tt.raw), "type %q", tt.raw)
	}
}
