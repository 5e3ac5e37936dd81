// Package sqlite implements kvauth.UserDirectory on SQLite through the
// pure-Go modernc.org/sqlite driver.
//
// Users and their linked provider accounts live in two tables. Deleting a
// user cascades to its accounts.
package sqlite
