package engine

import (
	"errors"
	"testing"
	"testing/fstest"

	"apiprobe/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromConfig(t *testing.T) {
	resolver, err := config.Load(config.Options{
		Resources: fstest.MapFS{
			"config/application.yml": &fstest.MapFile{Data: []byte(`
harness:
  features:
    - features/users
    - features/orders
  tags: "@smoke"
  concurrency: 4
  strict: false
  reporter: quiet
`)},
		},
		Overrides: map[string]string{"harness.format": "cucumber:out.json"},
	})
	require.NoError(t, err)

	opts, err := OptionsFromConfig(resolver)
	require.NoError(t, err)

	assert.Equal(t, []string{"features/users", "features/orders"}, opts.Paths)
	assert.Equal(t, "@smoke", opts.Tags)
	assert.Equal(t, 4, opts.Concurrency)
	assert.False(t, opts.Strict)
	assert.Equal(t, ReporterQuiet, opts.Reporter)
	assert.Equal(t, "cucumber:out.json", opts.Format)
}

func TestOptionsFromConfig_Defaults(t *testing.T) {
	resolver, err := config.Load(config.Options{Resources: fstest.MapFS{}})
	require.NoError(t, err)

	opts, err := OptionsFromConfig(resolver)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)

	opts, err = OptionsFromConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)
}

func TestOptionsFromConfig_ParseError(t *testing.T) {
	resolver, err := config.Load(config.Options{
		Resources: fstest.MapFS{},
		Overrides: map[string]string{"harness.concurrency": "many"},
	})
	require.NoError(t, err)

	_, err = OptionsFromConfig(resolver)
	var parseErr *config.ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "zero concurrency", mutate: func(o *Options) { o.Concurrency = 0 }, wantErr: true},
		{name: "empty format", mutate: func(o *Options) { o.Format = "" }, wantErr: true},
		{name: "unknown reporter", mutate: func(o *Options) { o.Reporter = "html" }, wantErr: true},
		{name: "quiet reporter", mutate: func(o *Options) { o.Reporter = ReporterQuiet }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := ValidateOptions(opts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("[a, b]"))
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList("[]"))
}
