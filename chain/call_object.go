package chain

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/erpc/solbridge/common"
	"github.com/erpc/solbridge/util"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Quantity is a non-negative integer that decodes from a JSON number, a
// decimal string or a 0x-prefixed hex string, and always encodes as hex.
type Quantity big.Int

func (q *Quantity) ToInt() *big.Int {
	return (*big.Int)(q)
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		raw = strings.TrimSpace(unquoted)
	}
	v, err := parseQuantity(raw)
	if err != nil {
		return err
	}
	*q = Quantity(*v)
	return nil
}

func (q *Quantity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hexutil.EncodeBig(q.ToInt()) + `"`), nil
}

func parseQuantity(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty quantity")
	}
	v := new(big.Int)
	var ok bool
	if util.Has0xPrefix(raw) {
		if len(raw) == 2 {
			return nil, fmt.Errorf("hex quantity %q has no digits", raw)
		}
		_, ok = v.SetString(raw[2:], 16)
	} else {
		_, ok = v.SetString(raw, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative quantity %q", raw)
	}
	return v, nil
}

// CallObject is the transaction-call object accepted by eth_call and
// eth_estimateGas.
type CallObject struct {
	From     *ethcommon.Address `json:"from,omitempty"`
	To       *ethcommon.Address `json:"to,omitempty"`
	Gas      *Quantity          `json:"gas,omitempty"`
	GasPrice *Quantity          `json:"gasPrice,omitempty"`
	Value    *Quantity          `json:"value,omitempty"`
	Data     *hexutil.Bytes     `json:"data,omitempty"`
	Input    *hexutil.Bytes     `json:"input,omitempty"`
}

// MarshalJSON emits only the fields that are set, all as hex strings, which is
// the shape every node implementation accepts.
func (c CallObject) MarshalJSON() ([]byte, error) {
	return common.SonicCfg.Marshal(c.ToMap())
}

func (c CallObject) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, 7)
	if c.From != nil {
		out["from"] = c.From.Hex()
	}
	if c.To != nil {
		out["to"] = c.To.Hex()
	}
	if c.Gas != nil {
		out["gas"] = hexutil.EncodeBig(c.Gas.ToInt())
	}
	if c.GasPrice != nil {
		out["gasPrice"] = hexutil.EncodeBig(c.GasPrice.ToInt())
	}
	if c.Value != nil {
		out["value"] = hexutil.EncodeBig(c.Value.ToInt())
	}
	if c.Data != nil {
		out["data"] = hexutil.Encode(*c.Data)
	}
	if c.Input != nil {
		out["input"] = hexutil.Encode(*c.Input)
	}
	return out
}

// CallData returns the call payload, preferring "input" over "data".
func (c *CallObject) CallData() []byte {
	if c.Input != nil {
		return *c.Input
	}
	if c.Data != nil {
		return *c.Data
	}
	return nil
}

// WithDefaultFrom returns a copy of c with From set to from when missing.
func (c *CallObject) WithDefaultFrom(from ethcommon.Address) *CallObject {
	cp := *c
	if cp.From == nil {
		cp.From = &from
	}
	return &cp
}

var namedBlockTags = map[string]bool{
	"latest":    true,
	"pending":   true,
	"earliest":  true,
	"safe":      true,
	"finalized": true,
}

// NormalizeBlockTag turns the loosely typed block argument of a call into a
// json-rpc block parameter. Empty or null means latest, decimal numbers are
// converted to hex.
func NormalizeBlockTag(raw []byte) (string, error) {
	if util.IsBlankOrNull(raw) {
		return "latest", nil
	}
	value := strings.TrimSpace(string(raw))
	if strings.HasPrefix(value, `"`) {
		unquoted, err := strconv.Unquote(value)
		if err != nil {
			return "", err
		}
		value = strings.TrimSpace(unquoted)
	}
	if value == "" {
		return "latest", nil
	}
	if namedBlockTags[strings.ToLower(value)] {
		return strings.ToLower(value), nil
	}
	n, err := parseQuantity(value)
	if err != nil {
		return "", fmt.Errorf("invalid block tag %q", value)
	}
	return hexutil.EncodeBig(n), nil
}
