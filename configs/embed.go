// Package configs embeds the annotated configuration template written by
// "notebooklm config init".
package configs

import _ "embed"

// ProjectConfigTemplate is the commented notebooklm.yaml holding every
// built-in default.
//
//go:embed notebooklm.example.yaml
var ProjectConfigTemplate string
