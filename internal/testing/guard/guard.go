// Package guard switches the application into test mode when imported by a
// test binary, so that runtime side effects stay off.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TABACCHI_TEST_MODE") == "" {
			_ = os.Setenv("TABACCHI_TEST_MODE", "1")
		}
	})
}
