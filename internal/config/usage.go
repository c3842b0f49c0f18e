// Usage limit configuration re-exports.
//
// DESIGN: Usage limits are defined in internal/usage/types.go.
// This file re-exports the type for use by the main Config struct.
package config

import "github.com/elon-ai/dialogue-gateway/internal/usage"

// UsageConfig is an alias for usage.Limits.
type UsageConfig = usage.Limits
