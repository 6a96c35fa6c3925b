//go:build swag

package swaggerkit

import docs "devflow/internal/services/api/docs"

// docReader serves the swag generated document
var docReader = func() string { return docs.SwaggerInfo.ReadDoc() }
