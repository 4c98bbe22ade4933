// Package guard switches a test binary into test mode on import so that
// startup code reached from tests stays inert.
package guard

import (
	"os"
	"sync"
)

// EnvTestMode is the switch read by the binaries.
const EnvTestMode = "ODYSSEY_TEST_MODE"

var once sync.Once

func init() {
	Enable()
}

// Enable sets test mode unless the environment already decided.
func Enable() {
	once.Do(func() {
		if os.Getenv(EnvTestMode) == "" {
			_ = os.Setenv(EnvTestMode, "1")
		}
	})
}
