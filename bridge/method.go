package bridge

// Method names one operation of the bridge protocol. The set is closed: the
// method table must provide a handler for every value in AllMethods and
// nothing else.
type Method string

const (
	MethodPendingNonceAt  Method = "pendingNonceAt"
	MethodSendTransaction Method = "sendTransaction"
	MethodEstimateGas     Method = "estimateGas"
	MethodCall            Method = "call"
	MethodWriteCoverage   Method = "writeCoverage"
	MethodClose           Method = "close"
)

var AllMethods = []Method{
	MethodPendingNonceAt,
	MethodSendTransaction,
	MethodEstimateGas,
	MethodCall,
	MethodWriteCoverage,
	MethodClose,
}

func ParseMethod(name string) (Method, bool) {
	for _, m := range AllMethods {
		if string(m) == name {
			return m, true
		}
	}
	return "", false
}

func (m Method) String() string {
	return string(m)
}
