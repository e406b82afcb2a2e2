// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package lockmgr

import "time"

// StartSweeper launches a background goroutine that calls CheckDeadlock on
// the manager's configured interval until Stop is called. It is optional:
// callers may instead trigger sweeps synchronously (§5, "callers MAY trigger
// it synchronously").
func (m *Manager) StartSweeper() (stop func()) {
	done := make(chan struct{})
	ticker := time.NewTicker(m.deadlockInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.CheckDeadlock(false)
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(done)
	}
}
