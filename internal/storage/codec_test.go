package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/pkg/utils"
)

func TestParamsKeepTheirTypes(t *testing.T) {
	in := map[string]any{
		"f":    2.0,
		"i":    int64(2),
		"s":    "2",
		"b":    false,
		"nil":  nil,
		"list": []any{"a", 1.0},
	}
	data, err := EncodeParams(in)
	require.NoError(t, err)

	out, err := DecodeParams(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.IsType(t, int64(0), out["i"])
	assert.IsType(t, float64(0), out["f"])
}

func TestNestedParamsDecodeLikeChoices(t *testing.T) {
	cat, err := space.NewCategorical([]any{[]any{1, 2}, []any{3, 4}})
	require.NoError(t, err)

	data, err := EncodeParams(map[string]any{"shape": []any{int64(3), 4}})
	require.NoError(t, err)
	out, err := DecodeParams(data)
	require.NoError(t, err)
	assert.Equal(t, []any{3.0, 4.0}, out["shape"])
	assert.Equal(t, 1, cat.Index(out["shape"]))
}

func TestDecodeParamsRejectsUnknownTag(t *testing.T) {
	_, err := DecodeParams(`{"x":{"t":"complex","v":"1"}}`)
	assert.Error(t, err)
	_, err = DecodeParams(`not json`)
	assert.Error(t, err)
}

func TestIntermediateEncoding(t *testing.T) {
	ns, err := encodeIntermediate(nil)
	require.NoError(t, err)
	assert.False(t, ns.Valid)

	ns, err = encodeIntermediate(map[int64]float64{3: 1.5, 10: 0.5})
	require.NoError(t, err)
	m, err := decodeIntermediate(ns)
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{3: 1.5, 10: 0.5}, m)

	m, err = decodeIntermediate(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	noWait := utils.ConstantBackoff{Delay: time.Millisecond}

	t.Run("non retriable returns at once", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := withRetry(ctx, 3, noWait, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("success stops retrying", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, 3, noWait, func() error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("serialization failures are retried", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, 3, noWait, func() error {
			calls++
			return &pgconn.PgError{Code: "40001"}
		})
		assert.Error(t, err)
		assert.Equal(t, 4, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		err := withRetry(cctx, 3, utils.ConstantBackoff{Delay: time.Hour}, func() error {
			calls++
			return &pgconn.PgError{Code: "40P01"}
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetriable(t *testing.T) {
	assert.False(t, isRetriable(nil))
	assert.False(t, isRetriable(errors.New("plain")))
	assert.False(t, isRetriable(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40P01"}))
}
