package migrations

import "embed"

// Files exposes the embedded SQL schema migrations, applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
