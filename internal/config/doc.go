// Package config provides the hierarchical configuration resolver for apiprobe.
//
// Configuration is read from two YAML documents under a resource root and
// merged, with later sources overriding earlier ones:
//
//  1. Base configuration (config/application.yml)
//  2. Environment overlay (config/application-<env>.yml)
//
// The environment name comes from Options.Environment, then the ENV
// variable, and finally defaults to "dev". Missing files are treated as
// empty documents.
//
// # Flattening
//
// Nested mappings are flattened into dotted keys:
//
//	rest:
//	  base-url: http://localhost:8080
//	  timeout-ms: 30000
//
// yields rest.base-url and rest.timeout-ms. Lists are stored verbatim under
// their dotted key.
//
// # Lookup Order
//
// For a key k, the first source that defines it wins:
//
//  1. Process override named exactly k (the CLI --set flag)
//  2. Environment variable: k upper-cased with '.' and '-' replaced by '_'
//     (rest.base-url becomes REST_BASE_URL)
//  3. Environment overlay
//  4. Base configuration
//  5. The caller-supplied default
//
// Missing keys never fail. Typed accessors return a *ParseError when a value
// exists but cannot be converted.
//
// # Usage Example
//
//	resolver, err := config.Load(config.Options{Resources: os.DirFS("testdata")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	baseURL := resolver.String("rest.base-url", "http://localhost:8080")
//	timeout, err := resolver.Int("rest.timeout-ms", 30000)
package config
