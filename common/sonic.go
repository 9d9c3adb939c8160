package common

import (
	"github.com/bytedance/sonic"
)

// SonicCfg is shared by every JSON encode/decode on the hot path: envelopes,
// json-rpc payloads and error bodies.
var SonicCfg sonic.API

// ReportSonicCfg is used for files meant to be diffed by humans, so map keys
// are sorted.
var ReportSonicCfg sonic.API

func init() {
	SonicCfg = sonic.Config{
		CopyString:              false,
		NoQuoteTextMarshaler:    true,
		NoValidateJSONMarshaler: true,
		NoValidateJSONSkip:      true,
		EscapeHTML:              false,
		SortMapKeys:             false,
		CompactMarshaler:        true,
		ValidateString:          false,
	}.Froze()

	ReportSonicCfg = sonic.Config{
		EscapeHTML:       false,
		SortMapKeys:      true,
		CompactMarshaler: true,
	}.Froze()
}
