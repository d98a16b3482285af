package embed

import _ "embed"

//go:embed init.sql
var InitSql string
