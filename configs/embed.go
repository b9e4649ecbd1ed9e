// Package configs provides embedded configuration templates for
// mnemolite.
//
// Templates are embedded at build time with //go:embed so they ship in
// every distribution. They are written by `mnemolite config init`,
// which creates either the project config (mnemolite.yaml, versioned
// with the repository) or the user config
// (~/.config/mnemolite/config.yaml, machine-specific).
//
// Configuration precedence (see internal/config.Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/mnemolite/config.yaml)
//  3. Project config (mnemolite.yaml)
//  4. .env file plus MNEMOLITE_* environment variables
package configs

import _ "embed"

// UserConfigTemplate is the per-machine configuration template:
// service endpoints, connection limits, log level.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the per-repository configuration template:
// search weights, worker counts, scan bounds.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
