package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	t.Parallel()

	cases := map[string]Money{
		"12":     1200,
		"12.5":   1250,
		"12.50":  1250,
		"0.05":   5,
		".99":    99,
		"-3.75":  -375,
		"1.005":  101,
		"1.004":  100,
		"+10.10": 1010,
	}
	for in, want := range cases {
		got, err := ParseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "abc", "1.2x", "1..2"} {
		_, err := ParseMoney(bad)
		assert.Error(t, err, bad)
	}
}

func TestMoneyArithmetic(t *testing.T) {
	t.Parallel()

	price := Cents(1200)
	assert.Equal(t, "24.00", price.Mul(2).String())
	assert.Equal(t, "18.00", price.Scale(1.5).String())
	assert.Equal(t, "1.20", price.Percent(10).String())
	assert.Equal(t, "-0.05", Cents(-5).String())
}

func TestMoneyScanAndValue(t *testing.T) {
	t.Parallel()

	var m Money
	require.NoError(t, m.Scan([]byte("9.99")))
	assert.Equal(t, Cents(999), m)

	require.NoError(t, m.Scan("10"))
	assert.Equal(t, Cents(1000), m)

	require.NoError(t, m.Scan(float64(2.5)))
	assert.Equal(t, Cents(250), m)

	require.NoError(t, m.Scan(nil))
	assert.Equal(t, Cents(0), m)

	assert.Error(t, m.Scan(true))

	v, err := Cents(1234).Value()
	require.NoError(t, err)
	assert.Equal(t, "12.34", v)
}

func TestMoneyJSON(t *testing.T) {
	t.Parallel()

	type line struct {
		Price Money `json:"price"`
	}
	b, err := json.Marshal(line{Price: 450})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":4.50}`, string(b))

	var out line
	require.NoError(t, json.Unmarshal([]byte(`{"price":"7.25"}`), &out))
	assert.Equal(t, Cents(725), out.Price)
	require.NoError(t, json.Unmarshal([]byte(`{"price":3}`), &out))
	assert.Equal(t, Cents(300), out.Price)
}
