// Package policy embeds the default governance allow-list.
package policy

import _ "embed"

// Default is the raw YAML allow-list compiled into the binary.
//
//go:embed default.yaml
var Default []byte
