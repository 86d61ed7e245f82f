// Package config loads reconctl's environment-driven settings (dispatcher,
// executor, database, and logging options) with typed getters and defaults.
package config
