// Package configs provides embedded configuration templates for skillrunner.
//
// How Configuration Templates Work:
//
// Templates are embedded at build time using Go's //go:embed directive.
// This ensures they are available in ALL distributions:
//   - Source builds (go install)
//   - Binary releases
//   - Homebrew installations
//
// The templates are used by:
//   - cmd/skillrunner/cmd/init.go - creates .skillrunner.yaml and skills.yaml
//   - cmd/skillrunner/cmd/config.go → creates user config at ~/.config/skillrunner/config.yaml
//
// Template files:
//   - project-config.example.yaml: Project-specific settings (search, runtime, history)
//   - user-config.example.yaml: Machine-specific settings (thermal, Ollama host, MLX)
//   - skills.example.yaml: Starter skill manifest
//
// Configuration Hierarchy (see internal/config/config.go Load()):
//   1. Hardcoded defaults (internal/config/config.go NewConfig())
//   2. User config (~/.config/skillrunner/config.yaml)
//   3. Project config (.skillrunner.yaml)
//   4. Environment variables (SKILLRUNNER_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
// Changes will be embedded in the next build.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by: `skillrunner config init` at ~/.config/skillrunner/config.yaml
// Contains: Machine-specific settings like thermal management, Ollama host, MLX endpoint.
// Use case: Settings that apply to all projects on this machine.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created by: `skillrunner init` at .skillrunner.yaml in the project root
// Contains: Project-specific settings like search weights and the runtime allowlist.
// Use case: Settings that are version-controlled with the project.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// SkillManifestTemplate is the starter skills.yaml written by
// `skillrunner init`: one working native echo skill plus a commented
// container-skill example.
//
//go:embed skills.example.yaml
var SkillManifestTemplate string
