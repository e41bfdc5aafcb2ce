package ledger

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestLockLedgerUsesRowLockOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "shop_owner_id", "balance_available"}).
		AddRow("5f0c6d4e-8f7a-4d58-9b38-3f5ee1f3c111", "owner-1", "120.50")
	mock.ExpectQuery(`SELECT \* FROM "shop_ledgers" WHERE shop_owner_id = \$1 .*FOR UPDATE`).
		WillReturnRows(rows)

	ledger, err := NewRepository(gdb).LockLedger(context.Background(), "owner-1")
	require.NoError(t, err)
	require.NotNil(t, ledger)
	require.Equal(t, "120.5", ledger.BalanceAvailable.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLedgerMissingReturnsNil(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "shop_ledgers"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ledger, err := NewRepository(gdb).FindLedger(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Nil(t, ledger)
	require.NoError(t, mock.ExpectationsWereMet())
}
