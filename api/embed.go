// Package api embeds the gateway's OpenAPI document so the running
// server can serve its own contract.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.1 YAML for the /v1 surface.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
