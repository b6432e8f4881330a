// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"sync/atomic"

	"github.com/vaultbox/corevault/log"
)

type atomicBool int32

func (b *atomicBool) isSet() bool { return atomic.LoadInt32((*int32)(b)) != 0 }
func (b *atomicBool) setTrue()    { atomic.StoreInt32((*int32)(b), 1) }
func (b *atomicBool) setFalse()   { atomic.StoreInt32((*int32)(b), 0) }

// -----------------------------------------------------------------------------

var testMode atomicBool

// InTestMode returns the test mode flag status.
//
// Test mode relaxes nothing about the cryptography itself; it only allows the
// test suite to force the LOW KDF profile regardless of the RAM-based
// selection so that Argon2id doesn't dominate test wall-clock time.
func InTestMode() bool {
	return testMode.isSet()
}

// SetTestMode enables the test mode and returns a function to revert it.
//
// Calling this function multiple times while already enabled produces no
// effect.
func SetTestMode() (revert func()) {
	if testMode.isSet() {
		return func() {}
	}

	testMode.setTrue()
	log.Level(log.DebugLevel).Message("vault: test mode enabled")

	return func() {
		testMode.setFalse()
		log.Level(log.DebugLevel).Message("vault: test mode disabled")
	}
}
