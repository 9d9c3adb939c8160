package util

import "os"

// Exit statuses are truncated to 8 bits by the OS.
const (
	ExitCodeBridgeStartFailed = 11
	ExitCodeHttpServerFailed  = 12
)

// OsExit is a variable so tests can intercept process termination.
var OsExit = os.Exit
