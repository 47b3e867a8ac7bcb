package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/infra/config"
	"github.com/mstgnz/paysettle/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) provider.NotificationStore

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) provider.NotificationStore {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) provider.NotificationStore {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "paysettle.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func newPending(correlationID string) *provider.PendingNotification {
	return &provider.PendingNotification{
		APIKey:           "api-key",
		RequestDateTime:  "2024-05-01T10:00:00",
		CorrelationID:    correlationID,
		ReferenceNo:      "REF-1",
		CreationDateTime: "2024-05-01T09:59:00",
		Amount:           decimal.RequireFromString("19.99"),
		CurrencyID:       "USD",
		StatusCode:       "102",
		Origin:           "ApiKey=api-key&MerchantSalesID=" + correlationID,
	}
}

func TestNotificationStore(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("insert_and_get", func(t *testing.T) {
				s := factory(t)
				id := uuid.NewString()
				n := newPending(id)

				require.NoError(t, s.Insert(ctx, n))
				assert.NotZero(t, n.ID)
				assert.False(t, n.CreatedAt.IsZero())

				got, err := s.GetByCorrelationID(ctx, id)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, n.ID, got.ID)
				assert.Equal(t, "REF-1", got.ReferenceNo)
				assert.True(t, decimal.RequireFromString("19.99").Equal(got.Amount))
				assert.Equal(t, n.Origin, got.Origin)
			})

			t.Run("lookup_ignores_case", func(t *testing.T) {
				s := factory(t)
				id := uuid.NewString()
				require.NoError(t, s.Insert(ctx, newPending(strings.ToUpper(id))))

				got, err := s.GetByCorrelationID(ctx, id)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, id, got.CorrelationID)
			})

			t.Run("missing_and_invalid_ids", func(t *testing.T) {
				s := factory(t)
				for _, id := range []string{"", "not-a-uuid", uuid.NewString()} {
					got, err := s.GetByCorrelationID(ctx, id)
					assert.NoError(t, err)
					assert.Nil(t, got)
				}
			})

			t.Run("duplicate_correlation", func(t *testing.T) {
				s := factory(t)
				id := uuid.NewString()
				require.NoError(t, s.Insert(ctx, newPending(id)))
				assert.ErrorIs(t, s.Insert(ctx, newPending(id)), provider.ErrDuplicateCorrelation)
			})

			t.Run("update_moves_correlation", func(t *testing.T) {
				s := factory(t)
				oldID, newID := uuid.NewString(), uuid.NewString()
				n := newPending(oldID)
				require.NoError(t, s.Insert(ctx, n))

				n.CorrelationID = newID
				n.StatusCode = ""
				n.OperationCodeConfirmed = true
				n.ClientRedirectURL = "https://sandbox.safetypay.test/pay?token=abc"
				require.NoError(t, s.Update(ctx, n))

				old, err := s.GetByCorrelationID(ctx, oldID)
				require.NoError(t, err)
				assert.Nil(t, old)

				got, err := s.GetByCorrelationID(ctx, newID)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, "", got.StatusCode)
				assert.True(t, got.OperationCodeConfirmed)
				assert.Equal(t, n.ClientRedirectURL, got.ClientRedirectURL)
			})

			t.Run("update_into_taken_correlation", func(t *testing.T) {
				s := factory(t)
				a, b := newPending(uuid.NewString()), newPending(uuid.NewString())
				require.NoError(t, s.Insert(ctx, a))
				require.NoError(t, s.Insert(ctx, b))

				b.CorrelationID = a.CorrelationID
				assert.ErrorIs(t, s.Update(ctx, b), provider.ErrDuplicateCorrelation)
			})

			t.Run("update_and_delete_missing_row", func(t *testing.T) {
				s := factory(t)
				ghost := newPending(uuid.NewString())
				ghost.ID = 4242
				assert.ErrorIs(t, s.Update(ctx, ghost), provider.ErrNotificationNotFound)
				assert.ErrorIs(t, s.Delete(ctx, ghost), provider.ErrNotificationNotFound)
			})

			t.Run("get_all_orders_by_id_desc", func(t *testing.T) {
				s := factory(t)
				for i := 0; i < 3; i++ {
					require.NoError(t, s.Insert(ctx, newPending(uuid.NewString())))
				}

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				require.Len(t, all, 3)
				assert.Greater(t, all[0].ID, all[1].ID)
				assert.Greater(t, all[1].ID, all[2].ID)
			})

			t.Run("delete", func(t *testing.T) {
				s := factory(t)
				n := newPending(uuid.NewString())
				require.NoError(t, s.Insert(ctx, n))
				require.NoError(t, s.Delete(ctx, n))

				all, err := s.GetAll(ctx)
				require.NoError(t, err)
				assert.Empty(t, all)
			})

			t.Run("returned_records_do_not_alias", func(t *testing.T) {
				s := factory(t)
				id := uuid.NewString()
				require.NoError(t, s.Insert(ctx, newPending(id)))

				got, _ := s.GetByCorrelationID(ctx, id)
				got.StatusCode = "100"

				again, _ := s.GetByCorrelationID(ctx, id)
				assert.Equal(t, "102", again.StatusCode)
			})

			t.Run("ping", func(t *testing.T) {
				assert.NoError(t, factory(t).Ping(ctx))
			})
		})
	}
}

func TestSQLStore_Rebind(t *testing.T) {
	s := &SQLStore{dialect: dialect{numbered: true}}
	assert.Equal(t, "UPDATE t SET a = $1 WHERE id = $2", s.rebind("UPDATE t SET a = ? WHERE id = ?"))

	s.dialect.numbered = false
	assert.Equal(t, "SELECT ?", s.rebind("SELECT ?"))
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "paysettle"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=paysettle sslmode=disable TimeZone=UTC", cfg.DSN())
}

func TestNewMySQLStore_InvalidDSN(t *testing.T) {
	_, err := NewMySQLStore(context.Background(), "not a dsn")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, &config.AppConfig{StorageDriver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, &config.AppConfig{StorageDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	s.Close()

	_, err = Open(ctx, &config.AppConfig{StorageDriver: "mysql"})
	assert.Error(t, err)

	_, err = Open(ctx, &config.AppConfig{StorageDriver: "mongo"})
	assert.Error(t, err)
}
