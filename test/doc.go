// Package test holds integration tests that run the stores against every
// available Redis backend. Run them with:
//
//	go test -tags integration ./test/...
//
// Set KVAUTH_REDIS_ADDR to include a real Redis server.
package test
