package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"pgconn", &pgconn.PgError{Code: "23505"}, true},
		{"pgconn other code", &pgconn.PgError{Code: "23503"}, false},
		{"lib/pq", &pq.Error{Code: "23505"}, true},
		{"mysql message", errors.New("Error 1062: Duplicate entry"), true},
		{"sqlite message", errors.New("UNIQUE constraint failed: payments.id"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestDialect(t *testing.T) {
	for _, typ := range []string{"postgres", "mysql", "sqlite", ""} {
		d, err := Dialect(Config{Type: typ, Name: "paycore"})
		assert.NoError(t, err, typ)
		assert.NotNil(t, d, typ)
	}

	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
