package coverage

import (
	"fmt"
	"math/big"

	"github.com/erpc/solbridge/util"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// StructLog is one step of a geth struct logger trace.
type StructLog struct {
	Pc    uint64   `json:"pc"`
	Op    string   `json:"op"`
	Depth int      `json:"depth"`
	Stack []string `json:"stack"`
}

type TraceResult struct {
	Failed      bool        `json:"failed"`
	Gas         uint64      `json:"gas"`
	ReturnValue string      `json:"returnValue"`
	StructLogs  []StructLog `json:"structLogs"`
}

type frameKind int

const (
	frameUnknown frameKind = iota
	frameAddress
	frameCreation
)

type frame struct {
	kind    frameKind
	address ethcommon.Address
}

// traceHits holds the program counters executed by a trace, split by the
// code that ran them.
type traceHits struct {
	byAddress map[ethcommon.Address]map[uint64]uint64
	creation  map[uint64]uint64
}

func (h *traceHits) empty() bool {
	return len(h.byAddress) == 0 && len(h.creation) == 0
}

// collectHits walks a trace and attributes every executed pc to the frame it
// ran in. Frames opened by CREATE and CREATE2 run init code with no address
// yet and are not attributed.
func collectHits(top frame, logs []StructLog) (*traceHits, error) {
	hits := &traceHits{byAddress: map[ethcommon.Address]map[uint64]uint64{}}
	if len(logs) == 0 {
		return hits, nil
	}

	base := logs[0].Depth
	frames := []frame{top}
	var pending *frame

	for i := range logs {
		log := &logs[i]
		rel := log.Depth - base
		if rel < 0 {
			return nil, fmt.Errorf("struct log %d: depth %d below trace start depth %d", i, log.Depth, base)
		}
		for rel > len(frames)-1 {
			if pending != nil {
				frames = append(frames, *pending)
				pending = nil
			} else {
				frames = append(frames, frame{kind: frameUnknown})
			}
		}
		if rel < len(frames)-1 {
			frames = frames[:rel+1]
		}
		pending = nil

		cur := frames[len(frames)-1]
		switch cur.kind {
		case frameAddress:
			pcs, ok := hits.byAddress[cur.address]
			if !ok {
				pcs = map[uint64]uint64{}
				hits.byAddress[cur.address] = pcs
			}
			pcs[log.Pc]++
		case frameCreation:
			if hits.creation == nil {
				hits.creation = map[uint64]uint64{}
			}
			hits.creation[log.Pc]++
		}

		switch log.Op {
		case "CALL", "CALLCODE", "DELEGATECALL", "STATICCALL":
			if len(log.Stack) < 2 {
				return nil, fmt.Errorf("struct log %d: %s with stack of %d items", i, log.Op, len(log.Stack))
			}
			addr, err := stackAddress(log.Stack[len(log.Stack)-2])
			if err != nil {
				return nil, fmt.Errorf("struct log %d: %w", i, err)
			}
			pending = &frame{kind: frameAddress, address: addr}
		case "CREATE", "CREATE2":
			pending = &frame{kind: frameUnknown}
		}
	}
	return hits, nil
}

// stackAddress reads an address from a stack word. Depending on the node
// version words are emitted with or without 0x and zero padding.
func stackAddress(word string) (ethcommon.Address, error) {
	v, ok := new(big.Int).SetString(util.Strip0x(word), 16)
	if !ok {
		return ethcommon.Address{}, fmt.Errorf("invalid stack word %q", word)
	}
	return ethcommon.BigToAddress(v), nil
}
