package datastore

import (
	"testing"

	"go.uber.org/zap/zaptest"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

// InitMockDB creates a rethink store backed by the mock of the rethinkdb driver.
func InitMockDB(t *testing.T) (*RethinkStore, *r.Mock) {
	rs := New(
		zaptest.NewLogger(t).Sugar(),
		"db-addr",
		"mockdb",
		"db-user",
		"db-password",
	)
	mock := rs.Mock()
	return rs, mock
}
