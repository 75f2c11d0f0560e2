package taskfile

import _ "embed"

// Default is the Taskfile written by `sluice init`.
//
//go:embed default.yaml
var Default []byte
