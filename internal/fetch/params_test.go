package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Clone(t *testing.T) {
	var nilParams Params
	c := nilParams.Clone()
	require.NotNil(t, c)
	assert.Empty(t, c)

	p := Params{"filter": "Villa"}
	c = p.Clone()
	c["filter"] = "Condo"
	assert.Equal(t, "Villa", p["filter"])
}

func TestParams_String(t *testing.T) {
	p := Params{"query": "lake", "limit": 6}
	assert.Equal(t, "lake", p.String("query"))
	assert.Equal(t, "6", p.String("limit"))
	assert.Equal(t, "", p.String("missing"))
}

func TestParams_Int(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int
		wantErr bool
	}{
		{"int", 6, 6, false},
		{"float", float64(3), 3, false},
		{"numeric string", "12", 12, false},
		{"empty string", "", 0, false},
		{"bad string", "twelve", 0, true},
		{"unsupported", []int{1}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Params{"limit": tt.value}.Int("limit")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	n, err := Params{}.Int("limit")
	require.NoError(t, err)
	assert.Zero(t, n)
}
