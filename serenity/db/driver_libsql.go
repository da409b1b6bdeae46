//go:build libsql

package db

import _ "github.com/tursodatabase/go-libsql"
