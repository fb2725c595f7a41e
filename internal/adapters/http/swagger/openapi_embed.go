package swagger

import _ "embed"

// OpenAPI contains the embedded OpenAPI document.
//
//go:embed openapi.yaml
var OpenAPI []byte
