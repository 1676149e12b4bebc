package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig() PlacedConfig {
	return PlacedConfig{
		"torque": {Type: KindNumber, Config: Number(5)},
		"color":  {Type: KindColor, Config: Table{"r": Number(1), "g": Number(0), "b": Number(0)}},
		"input":  Wire("b1", "value"),
	}
}

func TestConfigHashDeterministic(t *testing.T) {
	h1, err := ConfigHash(sampleConfig())
	require.NoError(t, err)
	h2, err := ConfigHash(sampleConfig())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestConfigHashChangesWithConfig(t *testing.T) {
	base := sampleConfig()
	changed := base.Clone()
	changed["torque"] = ConnectorConfig{Type: KindNumber, Config: Number(6)}

	assert.NotEqual(t, MustConfigHash(base), MustConfigHash(changed))
}

func TestConfigHashNFCEquivalence(t *testing.T) {
	a := PlacedConfig{"label": {Type: KindString, Config: String("caf\u00e9")}}
	b := PlacedConfig{"label": {Type: KindString, Config: String("cafe\u0301")}}

	assert.Equal(t, MustConfigHash(a), MustConfigHash(b))
}

func TestConfigHashDomainSeparation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainConfig, data), hashWithDomain(DomainEvent, data))
}

func TestEventHash(t *testing.T) {
	p := Table{"id": String("beep")}

	h1, err := EventHash("sound", "b1", p)
	require.NoError(t, err)
	h2, err := EventHash("sound", "b1", p.Clone())
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	other, err := EventHash("sound", "b2", p)
	require.NoError(t, err)
	assert.NotEqual(t, h1, other)

	cleared, err := EventHash("sound", "b1", nil)
	require.NoError(t, err)
	assert.NotEqual(t, h1, cleared)
}
