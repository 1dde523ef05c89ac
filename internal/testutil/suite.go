package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/uptrace/bun"
)

// DBSuite gives each test a transaction on an isolated, migrated database
// that is rolled back afterwards.
//
//	type RepoSuite struct {
//	    testutil.DBSuite
//	}
//
//	func (s *RepoSuite) TestSomething() {
//	    repo := NewRepository(s.DB(), log)
//	}
type DBSuite struct {
	suite.Suite
	TestDB *TestDB
	Ctx    context.Context

	dbSuffix string
}

// SetDBSuffix sets the database name suffix. Call it before DBSuite.SetupSuite.
func (s *DBSuite) SetDBSuffix(suffix string) {
	s.dbSuffix = suffix
}

// SetupSuite creates the test database, or skips the suite when PostgreSQL
// is not configured. Overrides must call s.DBSuite.SetupSuite() first.
func (s *DBSuite) SetupSuite() {
	s.Ctx = context.Background()
	if testing.Short() {
		s.T().Skip("skipping database suite in short mode")
	}
	if os.Getenv("POSTGRES_HOST") == "" && os.Getenv("POSTGRES_PORT") == "" {
		s.T().Skip("POSTGRES_HOST not set")
	}

	suffix := s.dbSuffix
	if suffix == "" {
		suffix = "suite"
	}
	db, err := SetupTestDB(s.Ctx, suffix)
	if err != nil {
		s.T().Skipf("database unavailable: %v", err)
	}
	s.TestDB = db
}

func (s *DBSuite) TearDownSuite() {
	if s.TestDB != nil {
		s.TestDB.Close()
	}
}

// SetupTest opens the per-test transaction.
func (s *DBSuite) SetupTest() {
	s.Require().NoError(s.TestDB.BeginTestTx(s.Ctx), "begin test transaction")
}

// TearDownTest discards everything the test wrote.
func (s *DBSuite) TearDownTest() {
	_ = s.TestDB.RollbackTestTx()
}

// DB returns the current test transaction.
func (s *DBSuite) DB() bun.IDB {
	return s.TestDB.GetDB()
}
