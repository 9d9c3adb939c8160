package chain

import (
	"testing"

	"github.com/erpc/solbridge/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallObject_Unmarshal(t *testing.T) {
	raw := `{
		"from": "0x5409ed021d9299bf6814279a6a1411a7e866a631",
		"to": "0x6ecbe1db9ef729cbe972c83fb886247691fb6beb",
		"value": 1000000000000000000000,
		"gas": "21000",
		"gasPrice": "0x3b9aca00",
		"data": "0x70a08231"
	}`

	var call CallObject
	require.NoError(t, common.SonicCfg.Unmarshal([]byte(raw), &call))

	assert.Equal(t, ethcommon.HexToAddress("0x6ecbe1db9ef729cbe972c83fb886247691fb6beb"), *call.To)
	assert.Equal(t, "1000000000000000000000", call.Value.ToInt().String())
	assert.Equal(t, "21000", call.Gas.ToInt().String())
	assert.Equal(t, "1000000000", call.GasPrice.ToInt().String())
	assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, call.CallData())

	m := call.ToMap()
	assert.Equal(t, "0x3635c9adc5dea00000", m["value"])
	assert.Equal(t, "0x5208", m["gas"])
	assert.Equal(t, "0x3b9aca00", m["gasPrice"])
	assert.Equal(t, "0x70a08231", m["data"])
	assert.NotContains(t, m, "input")
}

func TestCallObject_InvalidQuantity(t *testing.T) {
	for _, raw := range []string{
		`{"value": "0x"}`,
		`{"value": "twelve"}`,
		`{"value": -1}`,
		`{"gas": ""}`,
	} {
		var call CallObject
		assert.Error(t, common.SonicCfg.Unmarshal([]byte(raw), &call), raw)
	}
}

func TestCallObject_WithDefaultFrom(t *testing.T) {
	def := ethcommon.HexToAddress(common.DefaultFromAddress)
	other := ethcommon.HexToAddress("0x6ecbe1db9ef729cbe972c83fb886247691fb6beb")

	empty := &CallObject{}
	withDefault := empty.WithDefaultFrom(def)
	assert.Nil(t, empty.From, "original is left untouched")
	assert.Equal(t, def, *withDefault.From)

	explicit := &CallObject{From: &other}
	assert.Equal(t, other, *explicit.WithDefaultFrom(def).From)
}

func TestNormalizeBlockTag(t *testing.T) {
	cases := map[string]string{
		``:             "latest",
		`null`:         "latest",
		`""`:           "latest",
		`"latest"`:     "latest",
		`"PENDING"`:    "pending",
		`"finalized"`:  "finalized",
		`"12345"`:      "0x3039",
		`12345`:        "0x3039",
		`"0x3039"`:     "0x3039",
		`0`:            "0x0",
		`"earliest"`:   "earliest",
	}
	for raw, want := range cases {
		got, err := NormalizeBlockTag([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := NormalizeBlockTag([]byte(`"yesterday"`))
	assert.Error(t, err)
	_, err = NormalizeBlockTag([]byte(`{"blockHash":"0x00"}`))
	assert.Error(t, err)
}
