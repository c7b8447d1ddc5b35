package testing

import (
	"context"
	"testing"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
)

// BackendTestSuite is a conformance test suite for Backend implementations.
// It tests the interface contract, not implementation details, so the same
// suite runs against the local and S3 backends.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &testing.BackendTestSuite{
//	        NewBackend: func(t *testing.T) backend.Backend {
//	            b := mybackend.New(...)
//	            require.NoError(t, b.Setup(context.Background()))
//	            return b
//	        },
//	    }
//	    suite.Run(t)
//	}
type BackendTestSuite struct {
	// NewBackend returns a fresh, already set up Backend for each test.
	NewBackend func(t *testing.T) backend.Backend
}

// Run executes all tests in the suite.
func (suite *BackendTestSuite) Run(t *testing.T) {
	t.Run("ReadWrite", suite.RunReadWriteTests)
	t.Run("Remove", suite.RunRemoveTests)
	t.Run("Listing", suite.RunListTests)
	t.Run("Validation", suite.RunValidationTests)
}

func testContext() context.Context {
	return context.Background()
}
