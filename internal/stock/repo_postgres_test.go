package stock

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/pkg/enums"
)

func newPostgresMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func stockColumns() []string {
	return []string{"id", "feed_type", "location_type", "location_key", "quantity_kg", "min_quantity_kg", "created_at", "updated_at"}
}

func TestFindByKeyForUpdateLocksRowOnPostgres(t *testing.T) {
	db, mock := newPostgresMock(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "feed_stock_items" WHERE feed_type = \$1 AND location_key = \$2 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(stockColumns()).
			AddRow(id.String(), "starter", "global", "global", "300.00", "100.00", now, now))

	item, err := NewRepository(db).FindByKeyForUpdate(context.Background(), enums.FeedTypeStarter, "global")
	require.NoError(t, err)
	require.Equal(t, id, item.ID)
	require.True(t, item.QuantityKg.Equal(decimal.NewFromInt(300)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQuantityIssuesSingleUpdate(t *testing.T) {
	db, mock := newPostgresMock(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "feed_stock_items" SET "quantity_kg"=$1,"updated_at"=$2 WHERE id = $3`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewRepository(db).UpdateQuantity(context.Background(), id, decimal.RequireFromString("100.00"), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
