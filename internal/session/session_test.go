package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dhima/mysql-connector/internal/audit"
	"github.com/dhima/mysql-connector/internal/testutil/fakes"
	"github.com/dhima/mysql-connector/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var snapshotTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

var testParams = Params{
	Server:   "db.local",
	Port:     "3306",
	Database: "shop",
	User:     "app",
	Password: "secret",
}

type fixture struct {
	session   *Session
	mock      sqlmock.Sqlmock
	db        *sql.DB
	publisher *fakes.FakePublisher
}

// newFixture builds a session over sqlmock. Pass true to make pings
// expectations that tests must declare.
func newFixture(t *testing.T, monitorPings ...bool) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(len(monitorPings) > 0 && monitorPings[0]),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	publisher := &fakes.FakePublisher{}
	s := New(
		WithOpener(func(driver, dsn string) (*sql.DB, error) {
			assert.Equal(t, "mysql", driver)
			assert.Equal(t, testParams.DSN(), dsn)
			return db, nil
		}),
		WithClock(clock.NewFixed(snapshotTime)),
		WithPublisher(publisher),
	)
	return &fixture{session: s, mock: mock, db: db, publisher: publisher}
}

// configured returns a fixture whose session passed Configure.
func configured(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	require.NoError(t, f.session.Configure(context.Background(), testParams))
	return f
}

// opened returns a fixture whose session is configured and open.
func opened(t *testing.T) *fixture {
	t.Helper()
	f := configured(t)
	require.NoError(t, f.session.Open(context.Background()))
	return f
}

func TestConfigure_WhenPingSucceeds_ThenInitializedAndClosed(t *testing.T) {
	// Arrange
	f := newFixture(t)

	// Act
	err := f.session.Configure(context.Background(), testParams)

	// Assert
	require.NoError(t, err)
	assert.True(t, f.session.Initialized())
	open, err := f.session.IsOpen()
	require.NoError(t, err)
	assert.False(t, open)
	assert.Equal(t, "SERVER=db.local;PORT=3306;DATABASE=shop;UID=app;PASSWORD=secret;", f.session.ConnectionString())
	assert.Empty(t, f.session.LastError())
}

func TestConfigure_WhenPingFails_ThenConnectionUnavailable(t *testing.T) {
	// Arrange
	f := newFixture(t, true)
	f.mock.ExpectPing().WillReturnError(errors.New("server has gone away"))
	f.mock.ExpectClose()

	// Act
	err := f.session.Configure(context.Background(), testParams)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	var driverErr *DriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Equal(t, "ping", driverErr.Op)
	assert.EqualError(t, driverErr.Err, "server has gone away")
	assert.False(t, f.session.Initialized())
	assert.Equal(t, err.Error(), f.session.LastError())
	assert.Empty(t, f.session.ConnectionString())
}

func TestConfigure_WhenOpenerFails_ThenDriverError(t *testing.T) {
	// Arrange
	s := New(WithOpener(func(string, string) (*sql.DB, error) {
		return nil, errors.New("unknown driver")
	}))

	// Act
	err := s.Configure(context.Background(), testParams)

	// Assert
	var driverErr *DriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Equal(t, "open database", driverErr.Op)
	assert.Contains(t, s.LastError(), "unknown driver")
}

func TestConfigure_WhenPortInvalid_ThenInvalidParams(t *testing.T) {
	// Arrange
	f := newFixture(t)
	params := testParams
	params.Port = "mysql"

	// Act
	err := f.session.Configure(context.Background(), params)

	// Assert
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.False(t, f.session.Initialized())
}

func TestOpen_WhenNotInitialized_ThenNotInitialized(t *testing.T) {
	// Arrange
	s := New()

	// Act
	err := s.Open(context.Background())

	// Assert
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, ErrNotInitialized.Error(), s.LastError())
}

func TestOpen_WhenCalledTwice_ThenIdempotent(t *testing.T) {
	// Arrange
	f := configured(t)

	// Act
	require.NoError(t, f.session.Open(context.Background()))
	require.NoError(t, f.session.Open(context.Background()))

	// Assert
	open, err := f.session.IsOpen()
	require.NoError(t, err)
	assert.True(t, open)
}

func TestClose_WhenOpen_ThenClosedAndIdempotent(t *testing.T) {
	// Arrange
	f := opened(t)

	// Act
	require.NoError(t, f.session.Close())
	require.NoError(t, f.session.Close())

	// Assert
	open, err := f.session.IsOpen()
	require.NoError(t, err)
	assert.False(t, open)
}

func TestClose_WhenNotInitialized_ThenNotInitialized(t *testing.T) {
	assert.ErrorIs(t, New().Close(), ErrNotInitialized)
}

func TestIsOpen_WhenNotInitialized_ThenNotInitialized(t *testing.T) {
	// Act
	open, err := New().IsOpen()

	// Assert
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, open)
}

func TestQuery_WhenRowsExist_ThenCursorAtFirstRow(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT 1").
		WillReturnRows(newRows("1").AddRow(int64(1)))

	// Act
	cursor, err := f.session.Query(context.Background(), "SELECT 1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, cursor.Columns())
	var one int64
	require.NoError(t, cursor.Scan(&one))
	assert.Equal(t, int64(1), one)
	assert.False(t, cursor.Next())
	assert.NoError(t, cursor.Err())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestQuery_WhenConnectionClosed_ThenConnectionUnavailable(t *testing.T) {
	// Arrange
	f := configured(t)

	// Act
	cursor, err := f.session.Query(context.Background(), "SELECT 1")

	// Assert
	assert.Nil(t, cursor)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Equal(t, ErrConnectionUnavailable.Error(), f.session.LastError())
}

func TestQuery_WhenNotInitialized_ThenNotInitialized(t *testing.T) {
	_, err := New().Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestQuery_WhenNoRows_ThenNoRows(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT id FROM users WHERE id = 42").
		WillReturnRows(newRows("id"))

	// Act
	cursor, err := f.session.Query(context.Background(), "SELECT id FROM users WHERE id = 42")

	// Assert
	assert.Nil(t, cursor)
	assert.ErrorIs(t, err, ErrNoRows)
	assert.Equal(t, ErrNoRows.Error(), f.session.LastError())
}

func TestQuery_WhenDriverFails_ThenDriverErrorKeepsMessage(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELEC 1").
		WillReturnError(errors.New("You have an error in your SQL syntax"))

	// Act
	_, err := f.session.Query(context.Background(), "SELEC 1")

	// Assert
	var driverErr *DriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Equal(t, "query", driverErr.Op)
	assert.Contains(t, f.session.LastError(), "You have an error in your SQL syntax")
}

func TestQuery_WhenCursorOpen_ThenPreviousCursorClosed(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT name FROM users").
		WillReturnRows(newRows("name").AddRow("ada").AddRow("alan"))
	f.mock.ExpectQuery("SELECT 2").
		WillReturnRows(newRows("2").AddRow(int64(2)))

	first, err := f.session.Query(context.Background(), "SELECT name FROM users")
	require.NoError(t, err)

	// Act
	second, err := f.session.Query(context.Background(), "SELECT 2")

	// Assert
	require.NoError(t, err)
	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	_, err = first.Values()
	assert.ErrorIs(t, err, ErrCursorClosed)
}

func TestCursor_WhenIterating_ThenVisitsEveryRow(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(newRows("id", "name").
			AddRow(int64(1), "ada").
			AddRow(int64(2), "alan").
			AddRow(int64(3), []byte("grace")))

	cursor, err := f.session.Query(context.Background(), "SELECT id, name FROM users")
	require.NoError(t, err)

	// Act
	var names []any
	for {
		row, err := cursor.Map()
		require.NoError(t, err)
		names = append(names, row["name"])
		if !cursor.Next() {
			break
		}
	}

	// Assert
	assert.Equal(t, []any{"ada", "alan", "grace"}, names)
	assert.True(t, cursor.Closed())
	assert.NoError(t, cursor.Err())
}

func TestCloseCursor_WhenNoCursor_ThenNoOp(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT 1").
		WillReturnRows(newRows("1").AddRow(int64(1)))
	cursor, err := f.session.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)

	// Act
	errFirst := f.session.CloseCursor()
	errSecond := f.session.CloseCursor()

	// Assert
	assert.NoError(t, errFirst)
	assert.NoError(t, errSecond)
	assert.True(t, cursor.Closed())
}

func TestCloseCursor_WhenNotInitialized_ThenNotInitialized(t *testing.T) {
	assert.ErrorIs(t, New().CloseCursor(), ErrNotInitialized)
}

func TestExecute_WhenUpdateMatchesRows_ThenReturnsCount(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectExec("UPDATE t SET x=1").WillReturnResult(sqlmock.NewResult(0, 3))

	// Act
	affected, err := f.session.Execute(context.Background(), "UPDATE t SET x=1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	require.Len(t, f.publisher.Events, 1)
	event := f.publisher.Events[0]
	assert.Equal(t, audit.EventStatementExecuted, event.Type)
	assert.Equal(t, "shop", event.Database)
	require.NotNil(t, event.RowsAffected)
	assert.Equal(t, int64(3), *event.RowsAffected)
}

func TestExecute_WhenUpdateMatchesNothing_ThenReturnsZeroNotSentinel(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectExec("DELETE FROM t WHERE id = 0").WillReturnResult(sqlmock.NewResult(0, 0))

	// Act
	affected, err := f.session.Execute(context.Background(), "DELETE FROM t WHERE id = 0")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
	assert.NotEqual(t, NoRowCount, affected)
}

func TestExecute_WhenStatementDoesNotCount_ThenReturnsNoRowCount(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectExec("CREATE TABLE t (x INT)").WillReturnResult(sqlmock.NewResult(0, 0))

	// Act
	affected, err := f.session.Execute(context.Background(), "CREATE TABLE t (x INT)")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, NoRowCount, affected)
	require.Len(t, f.publisher.Events, 1)
	assert.Nil(t, f.publisher.Events[0].RowsAffected)
}

func TestExecute_WhenCursorOpen_ThenCursorClosedFirst(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT 1").
		WillReturnRows(newRows("1").AddRow(int64(1)).AddRow(int64(2)))
	f.mock.ExpectExec("INSERT INTO t VALUES (1)").WillReturnResult(sqlmock.NewResult(1, 1))
	cursor, err := f.session.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)

	// Act
	affected, err := f.session.Execute(context.Background(), "INSERT INTO t VALUES (1)")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.True(t, cursor.Closed())
}

func TestExecute_WhenConnectionClosed_ThenConnectionUnavailable(t *testing.T) {
	// Arrange
	f := configured(t)

	// Act
	_, err := f.session.Execute(context.Background(), "UPDATE t SET x=1")

	// Assert
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Empty(t, f.publisher.Events)
}

func TestExecute_WhenDriverFails_ThenDriverError(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectExec("UPDATE missing SET x=1").
		WillReturnError(errors.New("Table 'shop.missing' doesn't exist"))

	// Act
	_, err := f.session.Execute(context.Background(), "UPDATE missing SET x=1")

	// Assert
	var driverErr *DriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Equal(t, "execute: Table 'shop.missing' doesn't exist", f.session.LastError())
	assert.Empty(t, f.publisher.Events)
}

func TestExecute_WhenPublisherFails_ThenStillSucceeds(t *testing.T) {
	// Arrange
	f := opened(t)
	logger := fakes.NewRecordingLogger()
	WithLogger(logger)(f.session)
	f.publisher.FailNext = true
	f.mock.ExpectExec("UPDATE t SET x=1").WillReturnResult(sqlmock.NewResult(0, 2))

	// Act
	affected, err := f.session.Execute(context.Background(), "UPDATE t SET x=1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.Equal(t, 1, logger.Count(zapcore.ErrorLevel, "failed to publish audit event"))
	assert.Equal(t, 1, logger.CountLevel(zapcore.ErrorLevel))
}

func TestExecute_WhenStatementCarriesPassword_ThenAuditEventMasksIt(t *testing.T) {
	// Arrange
	f := opened(t)
	statement := "CREATE USER 'report'@'%' IDENTIFIED BY 's3cret'"
	f.mock.ExpectExec(statement).WillReturnResult(sqlmock.NewResult(0, 0))

	// Act
	affected, err := f.session.Execute(context.Background(), statement)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, NoRowCount, affected)
	require.Len(t, f.publisher.Events, 1)
	assert.Equal(t, "CREATE USER 'report'@'%' IDENTIFIED BY '*****'", f.publisher.Events[0].Statement)
	assert.NotContains(t, f.publisher.Events[0].Statement, "s3cret")
}

func TestConfigure_WhenPreviousTeardownFails_ThenWarnsAndReconfigures(t *testing.T) {
	// Arrange
	first, _, err := sqlmock.New()
	require.NoError(t, err)
	second, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	handles := []*sql.DB{first, second}
	logger := fakes.NewRecordingLogger()
	s := New(
		WithLogger(logger),
		WithOpener(func(string, string) (*sql.DB, error) {
			db := handles[0]
			handles = handles[1:]
			return db, nil
		}),
	)
	require.NoError(t, s.Configure(context.Background(), testParams))

	// Act
	err = s.Configure(context.Background(), testParams)

	// Assert
	require.NoError(t, err)
	assert.True(t, s.Initialized())
	assert.Equal(t, 1, logger.Count(zapcore.WarnLevel, "previous session teardown failed"))
}

// newRows builds a result set whose columns carry type metadata, as the
// MySQL driver reports it.
func newRows(names ...string) *sqlmock.Rows {
	columns := make([]*sqlmock.Column, len(names))
	for i, name := range names {
		columns[i] = sqlmock.NewColumn(name).OfType("VARCHAR", "").Nullable(true)
	}
	return sqlmock.NewRowsWithColumnDefinition(columns...)
}

func usersRows() *sqlmock.Rows {
	return newRows("id", "name").
		AddRow(int64(1), "ada").
		AddRow(int64(2), "alan")
}

func TestImportTable_WhenImportedTwice_ThenDuplicateAndSnapshotUnchanged(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT * FROM `users`;").WillReturnRows(usersRows())
	require.NoError(t, f.session.ImportTable(context.Background(), "users"))

	// Act
	err := f.session.ImportTable(context.Background(), "users")

	// Assert
	assert.ErrorIs(t, err, ErrDuplicateImport)
	assert.Equal(t, "table is already imported: users", f.session.LastError())

	table, err := f.session.Table("users")
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"id", "name"}, table.ColumnNames())
	assert.Equal(t, snapshotTime, table.ImportedAt)
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, []audit.EventType{audit.EventTableImported}, f.publisher.Types())
}

func TestImportTable_WhenConnectionClosed_ThenBorrowsPooledConnection(t *testing.T) {
	// Arrange
	f := configured(t)
	f.mock.ExpectQuery("SELECT * FROM `shop`.`users`;").WillReturnRows(usersRows())

	// Act
	err := f.session.ImportTable(context.Background(), "shop.users")

	// Assert
	require.NoError(t, err)
	open, err := f.session.IsOpen()
	require.NoError(t, err)
	assert.False(t, open)
	assert.Equal(t, []string{"shop.users"}, f.session.Tables())
}

func TestImportTable_WhenNameInvalid_ThenRejectedWithoutQuery(t *testing.T) {
	// Arrange
	f := opened(t)

	// Act
	err := f.session.ImportTable(context.Background(), "users; DROP TABLE users")

	// Assert
	assert.ErrorIs(t, err, ErrInvalidTableName)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestImportTable_WhenNotInitialized_ThenNotInitialized(t *testing.T) {
	assert.ErrorIs(t, New().ImportTable(context.Background(), "users"), ErrNotInitialized)
}

func TestImportTable_WhenQueryFails_ThenNothingCached(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT * FROM `ghosts`;").
		WillReturnError(errors.New("Table 'shop.ghosts' doesn't exist"))

	// Act
	err := f.session.ImportTable(context.Background(), "ghosts")

	// Assert
	var driverErr *DriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Empty(t, f.session.Tables())
}

func TestTable_WhenServerChangesAfterImport_ThenSnapshotUnchanged(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT * FROM `users`;").WillReturnRows(usersRows())
	f.mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, f.session.ImportTable(context.Background(), "users"))

	// Act
	_, err := f.session.Execute(context.Background(), "DELETE FROM users")
	require.NoError(t, err)
	table, err := f.session.Table("users")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestTable_WhenCallerMutatesCopy_ThenCacheUnchanged(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT * FROM `users`;").WillReturnRows(usersRows())
	require.NoError(t, f.session.ImportTable(context.Background(), "users"))

	// Act
	mutated, err := f.session.Table("users")
	require.NoError(t, err)
	mutated.Rows[0][1] = "mallory"
	fresh, err := f.session.Table("users")

	// Assert
	require.NoError(t, err)
	value, ok := fresh.Value(0, "name")
	assert.True(t, ok)
	assert.Equal(t, "ada", value)
}

func TestTable_WhenMissing_ThenTableNotFound(t *testing.T) {
	// Arrange
	f := configured(t)

	// Act
	table, err := f.session.Table("missing")

	// Assert
	assert.Nil(t, table)
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.Contains(t, f.session.LastError(), "can not find any table named missing")
}

func TestRefreshTable_WhenCached_ThenReplacesSnapshot(t *testing.T) {
	// Arrange
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	publisher := &fakes.FakePublisher{}
	s := New(
		WithOpener(func(string, string) (*sql.DB, error) { return db, nil }),
		WithClock(clock.NewStepping(snapshotTime, time.Minute)),
		WithPublisher(publisher),
	)
	require.NoError(t, s.Configure(context.Background(), testParams))
	mock.ExpectQuery("SELECT * FROM `users`;").WillReturnRows(usersRows())
	mock.ExpectQuery("SELECT * FROM `users`;").
		WillReturnRows(newRows("id", "name").AddRow(int64(3), "grace"))
	require.NoError(t, s.ImportTable(context.Background(), "users"))
	before, err := s.Table("users")
	require.NoError(t, err)

	// Act
	err = s.RefreshTable(context.Background(), "users")

	// Assert
	require.NoError(t, err)
	after, err := s.Table("users")
	require.NoError(t, err)
	assert.Equal(t, 1, after.Len())
	assert.True(t, after.ImportedAt.After(before.ImportedAt))
	assert.Equal(t, []audit.EventType{audit.EventTableImported, audit.EventTableRefreshed}, publisher.Types())
}

func TestRefreshTable_WhenNotCached_ThenTableNotFound(t *testing.T) {
	// Arrange
	f := opened(t)

	// Act
	err := f.session.RefreshTable(context.Background(), "users")

	// Assert
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDropTable_WhenCached_ThenRemoved(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectQuery("SELECT * FROM `users`;").WillReturnRows(usersRows())
	f.mock.ExpectQuery("SELECT * FROM `orders`;").
		WillReturnRows(newRows("id"))
	require.NoError(t, f.session.ImportTable(context.Background(), "users"))
	require.NoError(t, f.session.ImportTable(context.Background(), "orders"))

	// Act
	err := f.session.DropTable(context.Background(), "users")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, f.session.Tables())
	assert.ErrorIs(t, f.session.DropTable(context.Background(), "users"), ErrTableNotFound)
}

func TestShutdown_WhenConfigured_ThenBackToUninitialized(t *testing.T) {
	// Arrange
	f := opened(t)
	f.mock.ExpectClose()

	// Act
	err := f.session.Shutdown()

	// Assert
	require.NoError(t, err)
	assert.False(t, f.session.Initialized())
	assert.ErrorIs(t, f.session.Open(context.Background()), ErrNotInitialized)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
