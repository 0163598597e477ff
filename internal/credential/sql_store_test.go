package credential

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-marketplace/internal/model"
)

func TestSQLStoreSQLite(t *testing.T) {
	t.Parallel()

	store, err := OpenSQLStore(context.Background(), "sqlite", filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestSQLStorePostgresStatements(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQLStore(db, "pgx")

	t.Run("save upserts both slots in one transaction", func(t *testing.T) {
		upsert := regexp.QuoteMeta(`INSERT INTO credential_slots (slot, value) VALUES ($1, $2)`)
		mock.ExpectBegin()
		mock.ExpectExec(upsert).WithArgs(AccessSlot, "a1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(upsert).WithArgs(RefreshSlot, "r1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		store.Save(model.CredentialPair{Access: "a1", Refresh: "r1"})
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed upsert rolls back", func(t *testing.T) {
		upsert := regexp.QuoteMeta(`INSERT INTO credential_slots`)
		mock.ExpectBegin()
		mock.ExpectExec(upsert).WithArgs(AccessSlot, "a2").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(upsert).WithArgs(RefreshSlot, "r2").WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		store.Save(model.CredentialPair{Access: "a2", Refresh: "r2"})
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("read maps slots", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"slot", "value"}).
			AddRow(AccessSlot, "a1").
			AddRow(RefreshSlot, "r1")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT slot, value FROM credential_slots WHERE slot IN ($1, $2)`)).
			WithArgs(AccessSlot, RefreshSlot).
			WillReturnRows(rows)

		pair, ok := store.Read()
		require.True(t, ok)
		assert.Equal(t, model.CredentialPair{Access: "a1", Refresh: "r1"}, pair)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("read failure is absence", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT slot, value`)).WillReturnError(errors.New("connection reset"))

		_, ok := store.Read()
		assert.False(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replace access touches only the access row", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE credential_slots SET value = $1 WHERE slot = $2`)).
			WithArgs("a3", AccessSlot).
			WillReturnResult(sqlmock.NewResult(0, 1))

		store.ReplaceAccess("a3")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("clear deletes both slots", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM credential_slots WHERE slot IN ($1, $2)`)).
			WithArgs(AccessSlot, RefreshSlot).
			WillReturnResult(sqlmock.NewResult(0, 2))

		store.Clear()
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOpenSQLStoreRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLStore(context.Background(), "mongo", "x")
	require.Error(t, err)

	_, err = OpenSQLStore(context.Background(), "postgres", "")
	require.Error(t, err)
}
