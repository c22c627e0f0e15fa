package config

import (
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv replaces the environment lookup for the duration of the test.
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	original := osLookupEnv
	t.Cleanup(func() { osLookupEnv = original })
	osLookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func resources(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestLoad_MissingFilesAreEmpty(t *testing.T) {
	withEnv(t, nil)

	r, err := Load(Options{Resources: fstest.MapFS{}})
	require.NoError(t, err)

	assert.Equal(t, DefaultEnvironment, r.Environment())
	assert.Equal(t, 0, r.Snapshot().Len())
	assert.Equal(t, "fallback", r.String("rest.base-url", "fallback"))

	n, err := r.Int("rest.timeout-ms", 30000)
	assert.NoError(t, err)
	assert.Equal(t, 30000, n)
}

func TestLoad_EnvironmentFromVariable(t *testing.T) {
	withEnv(t, map[string]string{"ENV": "qa"})

	r, err := Load(Options{Resources: resources(map[string]string{
		"config/application-qa.yml": "rest:\n  base-url: http://qa\n",
	})})
	require.NoError(t, err)

	assert.Equal(t, "qa", r.Environment())
	assert.Equal(t, "http://qa", r.String("rest.base-url", ""))
}

func TestLoad_FlattensNestedMappings(t *testing.T) {
	withEnv(t, nil)

	r, err := Load(Options{Resources: resources(map[string]string{
		"config/application.yml": `
a:
  b:
    c: v
rest:
  relaxed-https: true
  timeout-ms: 1500
  ratio: 0.25
tags:
  - smoke
  - api
`,
	})})
	require.NoError(t, err)

	assert.Equal(t, "v", r.String("a.b.c", ""))
	assert.Equal(t, "[smoke, api]", r.String("tags", ""))
	assert.Equal(t, "0.25", r.String("rest.ratio", ""))

	relaxed, err := r.Bool("rest.relaxed-https", false)
	require.NoError(t, err)
	assert.True(t, relaxed)

	timeout, err := r.Duration("rest.timeout-ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, timeout)

	assert.Equal(t, []string{"a.b.c", "rest.ratio", "rest.relaxed-https", "rest.timeout-ms", "tags"}, r.Keys())
}

func TestLoad_MalformedYAML(t *testing.T) {
	withEnv(t, nil)

	_, err := Load(Options{Resources: resources(map[string]string{
		"config/application.yml": "rest: [unclosed",
	})})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config/application.yml")
}

func TestResolver_Precedence(t *testing.T) {
	files := resources(map[string]string{
		"config/application.yml":     "rest:\n  base-url: http://base\n  timeout-ms: 100\n  only-base: yes-base\n",
		"config/application-dev.yml": "rest:\n  base-url: http://env\n  timeout-ms: 200\n",
	})

	tests := []struct {
		name      string
		env       map[string]string
		overrides map[string]string
		want      string
		source    string
	}{
		{
			name:   "overlay wins over base",
			want:   "http://env",
			source: "application-dev.yml",
		},
		{
			name:   "environment variable wins over overlay",
			env:    map[string]string{"REST_BASE_URL": "http://override"},
			want:   "http://override",
			source: "env:REST_BASE_URL",
		},
		{
			name:      "process override wins over everything",
			env:       map[string]string{"REST_BASE_URL": "http://override"},
			overrides: map[string]string{"rest.base-url": "http://flag"},
			want:      "http://flag",
			source:    "override",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.env)

			r, err := Load(Options{Resources: files, Overrides: tt.overrides})
			require.NoError(t, err)

			// Lookups are deterministic across repeated calls.
			for i := 0; i < 3; i++ {
				assert.Equal(t, tt.want, r.String("rest.base-url", "default"))
			}
			assert.Equal(t, tt.source, r.Source("rest.base-url"))
			assert.Equal(t, "yes-base", r.String("rest.only-base", ""))
		})
	}
}

// S6: base, overlay and REST_BASE_URL all define rest.base-url.
func TestResolver_EnvironmentVariableBeatsFiles(t *testing.T) {
	t.Setenv("REST_BASE_URL", "http://override")

	r, err := Load(Options{
		Environment: "dev",
		Resources: resources(map[string]string{
			"config/application.yml":     "rest:\n  base-url: http://base\n",
			"config/application-dev.yml": "rest:\n  base-url: http://env\n",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "http://override", r.String("rest.base-url", ""))
}

func TestResolver_OverlayNullMasksBase(t *testing.T) {
	withEnv(t, nil)

	r, err := Load(Options{Resources: resources(map[string]string{
		"config/application.yml":     "rest:\n  base-url: http://base\n",
		"config/application-dev.yml": "rest:\n  base-url:\n",
	})})
	require.NoError(t, err)

	_, ok := r.Lookup("rest.base-url")
	assert.False(t, ok)
	assert.Equal(t, "default", r.String("rest.base-url", "default"))
}

func TestResolver_ParseErrors(t *testing.T) {
	withEnv(t, map[string]string{"REST_TIMEOUT_MS": "soon"})

	r, err := Load(Options{
		Resources: resources(map[string]string{
			"config/application.yml": "rest:\n  relaxed-https: maybe\n  limit: fast\n",
		}),
	})
	require.NoError(t, err)

	_, err = r.Int("rest.timeout-ms", 1)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "rest.timeout-ms", parseErr.Key)
	assert.Equal(t, "soon", parseErr.Value)
	assert.Equal(t, "int", parseErr.Kind)

	_, err = r.Bool("rest.relaxed-https", false)
	assert.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "boolean", parseErr.Kind)

	_, err = r.Int64("rest.limit", 0)
	assert.True(t, errors.As(err, &parseErr))

	_, err = r.Float64("rest.limit", 0)
	assert.True(t, errors.As(err, &parseErr))

	_, err = r.Duration("rest.limit", 0)
	assert.True(t, errors.As(err, &parseErr))

	// Missing keys never fail.
	n, err := r.Int64("rest.missing", 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "REST_BASE_URL", EnvKey("rest.base-url"))
	assert.Equal(t, "HARNESS_REPORT_DIR", EnvKey("harness.report-dir"))
}
