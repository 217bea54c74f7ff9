// Package mysql holds the connection pool, schema migrations and transaction
// helpers shared by every MySQL-backed aggregate store.
package mysql
