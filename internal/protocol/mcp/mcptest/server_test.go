package mcptest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weatherConfig = `
name: weather
tools:
  - name: forecast
    description: Forecast for a city
    responses:
      - condition:
          city: Oslo
        response:
          city: Oslo
          sky: snow
      - condition:
          city: Atlantis
        error: "unknown city {{city}}"
      - response: "sunny in {{city}}"
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig([]byte(weatherConfig))
	require.NoError(t, err)
	assert.Equal(t, "weather", cfg.Name)
	require.Len(t, cfg.Tools, 1)
	assert.Len(t, cfg.Tools[0].Responses, 3)

	_, err = LoadConfig([]byte("tools: [oops"))
	assert.Error(t, err)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{Name: "empty"})
	assert.ErrorContains(t, err, "has no tools")

	_, err = NewServer(Config{Tools: []Tool{{}}})
	assert.ErrorContains(t, err, "without a name")

	_, err = NewServer(Config{Tools: []Tool{{Name: "slow", Responses: []ToolResponse{{Delay: "soon"}}}}})
	assert.ErrorContains(t, err, "invalid delay")
}

func TestSelectResponse(t *testing.T) {
	cfg, err := LoadConfig([]byte(weatherConfig))
	require.NoError(t, err)
	responses := cfg.Tools[0].Responses

	assert.Same(t, &responses[0], selectResponse(responses, map[string]interface{}{"city": "Oslo"}))
	assert.Same(t, &responses[1], selectResponse(responses, map[string]interface{}{"city": "Atlantis"}))
	assert.Same(t, &responses[2], selectResponse(responses, map[string]interface{}{"city": "Rome"}))
	assert.Same(t, &responses[2], selectResponse(responses, nil))
	assert.Nil(t, selectResponse(responses[:2], nil))
}

func TestMatches_ComparesStringForms(t *testing.T) {
	assert.True(t, matches(map[string]interface{}{"n": 42}, map[string]interface{}{"n": 42.0}))
	assert.False(t, matches(map[string]interface{}{"n": 42}, map[string]interface{}{"n": 43.0}))
	assert.False(t, matches(map[string]interface{}{"n": 42}, map[string]interface{}{}))
}

func TestRender(t *testing.T) {
	cfg, err := LoadConfig([]byte(weatherConfig))
	require.NoError(t, err)

	text, err := render(cfg.Tools[0].Responses[0].Response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Oslo","sky":"snow"}`, text)

	text, err = render(nil)
	require.NoError(t, err)
	assert.Empty(t, text)

	assert.Equal(t, "sunny in Rome", expand("sunny in {{city}}", map[string]interface{}{"city": "Rome"}))
	assert.Equal(t, "no args {{city}}", expand("no args {{city}}", nil))
}
