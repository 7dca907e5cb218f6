package types

// FailureClass categorizes a failed source call.
type FailureClass string

const (
	FailureAuth      FailureClass = "auth"
	FailureThrottle  FailureClass = "throttle"
	FailureTimeout   FailureClass = "timeout"
	FailureServer    FailureClass = "server"
	FailureClient    FailureClass = "client"
	FailureMalformed FailureClass = "malformed"
	FailureUnknown   FailureClass = "unknown"
)

// FastFail reports whether failures of this class should trip the circuit quickly.
func (c FailureClass) FastFail() bool {
	return c == FailureAuth || c == FailureThrottle
}

// ClassifyStatus maps an HTTP status code to a failure class.
func ClassifyStatus(status int) FailureClass {
	switch {
	case status == 401 || status == 403:
		return FailureAuth
	case status == 429:
		return FailureThrottle
	case status == 408 || status == 504:
		return FailureTimeout
	case status >= 500:
		return FailureServer
	case status >= 400:
		return FailureClient
	}
	return FailureUnknown
}
