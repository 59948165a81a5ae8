//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/trustline/store"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "trust_lines"))
}

func newLine(tenantID, asset string, max int64) *models.TrustLine {
	return &models.TrustLine{
		TenantID:        tenantID,
		IssuerAccountID: "GISSUER",
		IssuerAddress:   "issuer*bank.example",
		AssetCode:       asset,
		MaximumAmount:   decimal.NewFromInt(max),
		CurrentBalance:  decimal.Zero,
		UpdatedAt:       time.Now().UTC(),
	}
}

func (s *PostgresStoreSuite) TestUpsertAndFind() {
	ctx := context.Background()
	line := newLine("tenant-a", "USD", 100)
	s.Require().NoError(s.store.Upsert(ctx, line))

	line.MaximumAmount = decimal.RequireFromString("250.1234567")
	line.CurrentBalance = decimal.NewFromInt(10)
	s.Require().NoError(s.store.Upsert(ctx, line))

	got, err := s.store.Find(ctx, line.Key())
	s.Require().NoError(err)
	s.True(got.MaximumAmount.Equal(line.MaximumAmount))
	s.True(got.CurrentBalance.Equal(decimal.NewFromInt(10)))
	s.Equal("issuer*bank.example", got.IssuerAddress)
}

func (s *PostgresStoreSuite) TestBalanceAboveMaximumRejected() {
	line := newLine("tenant-a", "USD", 10)
	line.CurrentBalance = decimal.NewFromInt(11)
	s.Error(s.store.Upsert(context.Background(), line))
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()
	line := newLine("tenant-a", "USD", 100)
	s.Require().NoError(s.store.Upsert(ctx, line))
	s.Require().NoError(s.store.Delete(ctx, line.Key()))

	_, err := s.store.Find(ctx, line.Key())
	s.True(errors.Is(err, sentinel.ErrNotFound))
	s.True(errors.Is(s.store.Delete(ctx, line.Key()), sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestListByTenant() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, newLine("tenant-a", "USD", 1)))
	s.Require().NoError(s.store.Upsert(ctx, newLine("tenant-a", "EUR", 1)))
	s.Require().NoError(s.store.Upsert(ctx, newLine("tenant-b", "USD", 1)))

	lines, err := s.store.ListByTenant(ctx, "tenant-a")
	s.Require().NoError(err)
	s.Require().Len(lines, 2)
	s.Equal("EUR", lines[0].AssetCode)
	s.Equal("USD", lines[1].AssetCode)
}
