package repository

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithParam(t *testing.T) {
	cases := []struct {
		dsn, want string
	}{
		{"postgres://u:p@localhost:5432/app", "postgres://u:p@localhost:5432/app?sslmode=disable"},
		{"postgres://u:p@localhost/app?pool_max_conns=5", "postgres://u:p@localhost/app?pool_max_conns=5&sslmode=disable"},
		{"host=localhost dbname=app", "host=localhost dbname=app sslmode=disable"},
		{"postgres://localhost/app?sslmode=require", "postgres://localhost/app?sslmode=require"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, withParam(tc.dsn, "sslmode", "disable"))
	}
}

func TestOpenWithoutDSN(t *testing.T) {
	repo, closeFn, err := Open(context.Background(), "", true, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryProfileRepo{}, repo)
	closeFn()

	_, _, err = Open(context.Background(), "", false, zerolog.Nop())
	assert.Error(t, err)
}
