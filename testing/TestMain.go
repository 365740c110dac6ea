package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("USERDIR_TEST_MODE", "1")
		if os.Getenv("DEFAULT_LOCALE") == "" {
			_ = os.Setenv("DEFAULT_LOCALE", "en")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
