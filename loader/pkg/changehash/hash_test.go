package changehash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWarehouse_Changehash_Deterministic(t *testing.T) {
	t.Parallel()

	values := []any{"V123456", "SMITH", int64(30), true, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	d1, err := Sum(values)
	require.NoError(t, err)
	d2, err := Sum(values)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
	require.Len(t, d1.String(), 32)
}

func TestWarehouse_Changehash_DistinctInputsDiffer(t *testing.T) {
	t.Parallel()

	t.Run("single value change", func(t *testing.T) {
		t.Parallel()
		d1, err := Sum([]any{"V123456", int64(10)})
		require.NoError(t, err)
		d2, err := Sum([]any{"V123456", int64(30)})
		require.NoError(t, err)
		require.NotEqual(t, d1, d2)
	})

	t.Run("value order matters", func(t *testing.T) {
		t.Parallel()
		d1, err := Sum([]any{"a", "b"})
		require.NoError(t, err)
		d2, err := Sum([]any{"b", "a"})
		require.NoError(t, err)
		require.NotEqual(t, d1, d2)
	})

	t.Run("boundary shift does not collide", func(t *testing.T) {
		t.Parallel()
		// ("ab","c") vs ("a","bc") must differ because values are
		// length-prefixed, not delimiter-joined.
		d1, err := Sum([]any{"ab", "c"})
		require.NoError(t, err)
		d2, err := Sum([]any{"a", "bc"})
		require.NoError(t, err)
		require.NotEqual(t, d1, d2)
	})

	t.Run("null vs empty string", func(t *testing.T) {
		t.Parallel()
		d1, err := Sum([]any{nil})
		require.NoError(t, err)
		d2, err := Sum([]any{""})
		require.NoError(t, err)
		require.NotEqual(t, d1, d2)
	})
}

func TestWarehouse_Changehash_Nulls(t *testing.T) {
	t.Parallel()

	t.Run("all nulls is well defined", func(t *testing.T) {
		t.Parallel()
		d1, err := Sum([]any{nil, nil, nil})
		require.NoError(t, err)
		d2, err := Sum([]any{nil, nil, nil})
		require.NoError(t, err)
		require.Equal(t, d1, d2)

		// Null count still matters.
		d3, err := Sum([]any{nil, nil})
		require.NoError(t, err)
		require.NotEqual(t, d1, d3)
	})

	t.Run("nil typed pointers hash as null", func(t *testing.T) {
		t.Parallel()
		var s *string
		var ts *time.Time
		d1, err := Sum([]any{s, ts})
		require.NoError(t, err)
		d2, err := Sum([]any{nil, nil})
		require.NoError(t, err)
		require.Equal(t, d1, d2)
	})

	t.Run("non-nil pointer hashes as its value", func(t *testing.T) {
		t.Parallel()
		v := "SMITH"
		d1, err := Sum([]any{&v})
		require.NoError(t, err)
		d2, err := Sum([]any{"SMITH"})
		require.NoError(t, err)
		require.Equal(t, d1, d2)
	})
}

func TestWarehouse_Changehash_TimeNormalization(t *testing.T) {
	t.Parallel()

	utc := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	est := utc.In(time.FixedZone("EST", -5*3600))

	d1, err := Sum([]any{utc})
	require.NoError(t, err)
	d2, err := Sum([]any{est})
	require.NoError(t, err)
	require.Equal(t, d1, d2, "same instant in different zones must hash identically")
}

func TestWarehouse_Changehash_UnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := Sum([]any{struct{ X int }{1}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported value type")
}

func TestWarehouse_Changehash_ParseRoundTrip(t *testing.T) {
	t.Parallel()

	d, err := Sum([]any{"V123456", int64(30)})
	require.NoError(t, err)

	parsed, err := Parse(d.String())
	require.NoError(t, err)
	require.Equal(t, d, parsed)

	_, err = Parse("not-hex")
	require.Error(t, err)

	_, err = Parse("abcd")
	require.Error(t, err)
	require.Contains(t, err.Error(), "16 bytes")
}
