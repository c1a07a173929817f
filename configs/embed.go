// Package configs embeds the configuration templates written by
// 'fusesearch config init'.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config ($XDG_CONFIG_HOME/fusesearch/config.yaml)
//  3. Project config (.fusesearch.yaml or .fusesearch.toml)
//  4. Environment variables (FUSESEARCH_*)
package configs

import _ "embed"

// UserConfigTemplate holds settings shared by every project on a machine.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written to .fusesearch.yaml in a project root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
