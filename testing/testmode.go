// Package testing switches the process into test mode when imported for side effects.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		_ = os.Setenv("PRICEBOOK_TEST_MODE", "1")
		for key, value := range map[string]string{
			"STORE_DRIVER":    "memory",
			"REPORT_RENDERER": "fpdf",
		} {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}
