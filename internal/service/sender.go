// internal/service/sender.go
package service

import (
	"fmt"
	"math/rand"
)

// MockSender simulates the transactional email hand-off with 90% success.
// TODO: replace with the real transactional sender client once its API
// credentials are provisioned per-tenant.
func MockSender(to, subject, body string) error {
	if rand.Float64() < 0.9 {
		return nil // success
	}
	return fmt.Errorf("mock sending to %s failed", to)
}
