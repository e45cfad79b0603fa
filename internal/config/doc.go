// Package config provides configuration loading and validation for the
// meeting capture service. It handles YAML-based configuration with struct
// validation, environment overrides for secrets, and sensible defaults so a
// minimal file is enough to run the service.
package config
