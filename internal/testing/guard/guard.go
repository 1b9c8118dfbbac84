// Package guard switches the process into test mode when imported, so
// entrypoints and workers skip network side effects under go test.
package guard

import "os"

const testModeEnv = "ODYSSEY_TEST_MODE"

func init() {
	if _, set := os.LookupEnv(testModeEnv); !set {
		_ = os.Setenv(testModeEnv, "1")
	}
}
