package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger prefixed with the test name. It writes to stdout
// rather than t.Log since connection goroutines may outlive the test.
func TestLogger(t testing.TB) *log.Logger {
	return log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags|log.Lmicroseconds)
}
