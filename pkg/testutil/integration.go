package testutil

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite starts a fresh HAL server and temp directory for every
// test of the suite.
type IntegrationTestSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	tempDir string
	API     *HALServer
}

// SetupTest runs before each test
func (s *IntegrationTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)
	s.tempDir = s.T().TempDir()
	s.API = NewHALServer(s.T())
}

// TearDownTest runs after each test
func (s *IntegrationTestSuite) TearDownTest() {
	s.cancel()
}

// Context returns the test context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// Path returns name inside the test's temp directory.
func (s *IntegrationTestSuite) Path(name string) string {
	return filepath.Join(s.tempDir, name)
}

// WriteFile creates a file in the temp directory and returns its path.
func (s *IntegrationTestSuite) WriteFile(name string, content []byte) string {
	path := s.Path(name)
	require.NoError(s.T(), os.WriteFile(path, content, 0o600))
	return path
}
