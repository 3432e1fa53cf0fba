package swagger

import _ "embed"

// OpenAPI contains the embedded OpenAPI document of the ops surface.
//
//go:embed openapi.yaml
var OpenAPI []byte
