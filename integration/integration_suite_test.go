// Package integration contains end-to-end integration tests for AlertScope.
// These tests drive a running server from session creation through filter
// control changes to the refetched alerts.
package integration

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AlertScope Integration Suite")
}
