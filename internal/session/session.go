package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dhima/mysql-connector/internal/audit"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/dhima/mysql-connector/pkg/clock"
	_ "github.com/go-sql-driver/mysql"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const driverName = "mysql"

// OpenFunc opens a database handle. It matches sql.Open.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.logger = l.With(zap.String("component", "session")) }
}

// WithClock sets the clock used to stamp table snapshots.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithPublisher sets the sink for audit events.
func WithPublisher(p audit.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

// WithOpener replaces sql.Open, mainly so tests can hand in a mock.
func WithOpener(open OpenFunc) Option {
	return func(s *Session) { s.open = open }
}

// Session is a handle on one MySQL database: a single connection that is
// opened and closed explicitly, at most one open cursor on it, and a
// cache of table snapshots.
//
// Every method takes the session lock, so concurrent callers are
// serialized rather than interleaved on the shared connection.
type Session struct {
	mu sync.Mutex

	params      Params
	initialized bool
	db          *sql.DB
	conn        *sql.Conn
	cursor      *Cursor
	tables      map[string]*Table
	lastErr     string

	open      OpenFunc
	logger    logging.Logger
	clock     clock.Clock
	publisher audit.Publisher
}

// New returns an unconfigured session.
func New(opts ...Option) *Session {
	s := &Session{
		tables:    make(map[string]*Table),
		open:      sql.Open,
		logger:    logging.NewNoOpLogger(),
		clock:     clock.RealClock{},
		publisher: audit.NoopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure connects to the server described by p and checks that it
// answers a ping. On success the session is initialized and the
// connection is left closed; call Open before reading or writing.
// Calling Configure again replaces the previous configuration and drops
// the table cache.
func (s *Session) Configure(ctx context.Context, p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := p.validate(); err != nil {
		return s.fail("configure", err)
	}

	if err := s.teardownLocked(); err != nil {
		s.logger.Warn("previous session teardown failed", logging.Op("configure"), zap.Error(err))
	}

	db, err := s.open(driverName, p.DSN())
	if err != nil {
		return s.fail("configure", driverError("open database", err))
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return s.fail("configure", fmt.Errorf("%w: %w", ErrConnectionUnavailable, driverError("connect", err)))
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return s.fail("configure", fmt.Errorf("%w: %w", ErrConnectionUnavailable, driverError("ping", err)))
	}

	if err := conn.Close(); err != nil {
		_ = db.Close()
		return s.fail("configure", driverError("close connection", err))
	}

	s.params = p
	s.db = db
	s.initialized = true
	s.tables = make(map[string]*Table)

	s.logger.Info("session configured",
		logging.Op("configure"),
		zap.String("connection", p.Redacted()))
	return nil
}

// ConnectionString returns the connection string of the configured
// session, or "" before Configure.
func (s *Session) ConnectionString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ""
	}
	return s.params.ConnectionString()
}

// Open acquires the session connection. Opening an open session is a no-op.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return s.fail("open", ErrNotInitialized)
	}
	if s.conn != nil {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return s.fail("open", driverError("open connection", err))
	}
	s.conn = conn

	s.logger.Debug("connection opened", logging.Op("open"))
	return nil
}

// Close closes the open cursor, if any, and releases the connection.
// Closing a closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return s.fail("close", ErrNotInitialized)
	}
	if err := s.closeConnLocked(); err != nil {
		return s.fail("close", err)
	}

	s.logger.Debug("connection closed", logging.Op("close"))
	return nil
}

// IsOpen reports whether the session connection is open.
func (s *Session) IsOpen() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return false, s.fail("is open", ErrNotInitialized)
	}
	return s.conn != nil, nil
}

// Initialized reports whether Configure has succeeded.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Query runs a statement that returns rows. Any cursor left open by an
// earlier call is closed first. The returned cursor is positioned at the
// first row; an empty result yields ErrNoRows.
func (s *Session) Query(ctx context.Context, query string) (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenLocked(); err != nil {
		return nil, s.fail("query", err)
	}
	if err := s.closeCursorLocked(); err != nil {
		return nil, s.fail("query", err)
	}

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, s.fail("query", driverError("query", err))
	}

	cursor, err := newCursor(rows)
	if err != nil {
		return nil, s.fail("query", err)
	}
	s.cursor = cursor

	s.logger.Debug("query returned rows",
		logging.Op("query"),
		logging.Statement(query),
		zap.Strings("columns", cursor.columns))
	return cursor, nil
}

// CloseCursor closes the cursor returned by the last Query. It is a no-op
// when no cursor is open.
func (s *Session) CloseCursor() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return s.fail("close cursor", ErrNotInitialized)
	}
	if err := s.closeCursorLocked(); err != nil {
		return s.fail("close cursor", err)
	}
	return nil
}

// Execute runs a statement that does not return rows. It returns the
// number of affected rows for INSERT, UPDATE, DELETE, REPLACE and LOAD
// statements and NoRowCount for every other statement.
func (s *Session) Execute(ctx context.Context, statement string) (int64, error) {
	affected, err := s.execute(ctx, statement)
	if err != nil {
		return 0, err
	}

	event := s.newEvent(audit.EventStatementExecuted)
	event.Statement = logging.SanitizeSQL(statement, audit.MaxStatementLen)
	if affected != NoRowCount {
		event.RowsAffected = &affected
	}
	s.publish(ctx, event)
	return affected, nil
}

func (s *Session) execute(ctx context.Context, statement string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenLocked(); err != nil {
		return 0, s.fail("execute", err)
	}
	if err := s.closeCursorLocked(); err != nil {
		return 0, s.fail("execute", err)
	}

	res, err := s.conn.ExecContext(ctx, statement)
	if err != nil {
		return 0, s.fail("execute", driverError("execute", err))
	}

	if !reportsRowCount(statement) {
		s.logger.Debug("statement executed", logging.Op("execute"), logging.Statement(statement))
		return NoRowCount, nil
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, s.fail("execute", driverError("rows affected", err))
	}

	s.logger.Debug("statement executed",
		logging.Op("execute"),
		logging.Statement(statement),
		zap.Int64("rows_affected", affected))
	return affected, nil
}

// ImportTable copies the current contents of the named server table into
// the cache. A table can be imported once; use RefreshTable to take a new
// snapshot. When the session connection is closed a pooled connection is
// borrowed for the read and returned afterwards.
func (s *Session) ImportTable(ctx context.Context, name string) error {
	table, err := s.importTable(ctx, name, false)
	if err != nil {
		return err
	}

	event := s.newEvent(audit.EventTableImported)
	event.Table = name
	rows := table.Len()
	event.RowCount = &rows
	s.publish(ctx, event)
	return nil
}

// RefreshTable replaces the snapshot of an already imported table.
func (s *Session) RefreshTable(ctx context.Context, name string) error {
	table, err := s.importTable(ctx, name, true)
	if err != nil {
		return err
	}

	event := s.newEvent(audit.EventTableRefreshed)
	event.Table = name
	rows := table.Len()
	event.RowCount = &rows
	s.publish(ctx, event)
	return nil
}

func (s *Session) importTable(ctx context.Context, name string, refresh bool) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := "import"
	if refresh {
		op = "refresh"
	}

	if !s.initialized {
		return nil, s.fail(op, ErrNotInitialized)
	}
	quoted, err := quoteTableName(name)
	if err != nil {
		return nil, s.fail(op, err)
	}

	_, cached := s.tables[name]
	switch {
	case cached && !refresh:
		return nil, s.fail(op, fmt.Errorf("%w: %s", ErrDuplicateImport, name))
	case !cached && refresh:
		return nil, s.fail(op, fmt.Errorf("%w: %s", ErrTableNotFound, name))
	}

	var rows *sql.Rows
	query := "SELECT * FROM " + quoted + ";"
	if s.conn != nil {
		if err := s.closeCursorLocked(); err != nil {
			return nil, s.fail(op, err)
		}
		rows, err = s.conn.QueryContext(ctx, query)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, s.fail(op, driverError(op+" "+name, err))
	}

	table, err := readTable(rows, name, s.clock.Now())
	if err != nil {
		return nil, s.fail(op, err)
	}
	s.tables[name] = table

	s.logger.Info("table snapshot stored",
		logging.Op(op),
		logging.Table(name),
		zap.Int("rows", table.Len()),
		zap.Int("columns", len(table.Columns)))
	return table, nil
}

// Table returns a copy of the cached snapshot of the named table.
func (s *Session) Table(name string) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[name]
	if !ok {
		return nil, s.fail("table", fmt.Errorf("%w: can not find any table named %s", ErrTableNotFound, name))
	}
	return table.Clone(), nil
}

// Tables lists the cached table names in sorted order.
func (s *Session) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := lo.Keys(s.tables)
	slices.Sort(names)
	return names
}

// DropTable removes a snapshot from the cache.
func (s *Session) DropTable(ctx context.Context, name string) error {
	s.mu.Lock()
	if _, ok := s.tables[name]; !ok {
		err := s.fail("drop", fmt.Errorf("%w: %s", ErrTableNotFound, name))
		s.mu.Unlock()
		return err
	}
	delete(s.tables, name)
	s.logger.Info("table snapshot dropped", logging.Op("drop"), logging.Table(name))
	s.mu.Unlock()

	event := s.newEvent(audit.EventTableDropped)
	event.Table = name
	s.publish(ctx, event)
	return nil
}

// LastError returns the message of the most recent failure, or "".
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Shutdown closes the connection and the underlying database handle. The
// session returns to the unconfigured state.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	if err := s.teardownLocked(); err != nil {
		return s.fail("shutdown", err)
	}
	s.logger.Info("session shut down", logging.Op("shutdown"))
	return nil
}

// teardownLocked releases everything Configure acquired.
func (s *Session) teardownLocked() error {
	var errs []error
	if err := s.closeConnLocked(); err != nil {
		errs = append(errs, err)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, driverError("close database", err))
		}
		s.db = nil
	}
	s.initialized = false
	s.tables = make(map[string]*Table)
	return errors.Join(errs...)
}

func (s *Session) closeConnLocked() error {
	cursorErr := s.closeCursorLocked()
	if s.conn == nil {
		return cursorErr
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return errors.Join(cursorErr, driverError("close connection", err))
	}
	return cursorErr
}

func (s *Session) closeCursorLocked() error {
	if s.cursor == nil {
		return nil
	}
	err := s.cursor.Close()
	s.cursor = nil
	return err
}

func (s *Session) requireOpenLocked() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if s.conn == nil {
		return ErrConnectionUnavailable
	}
	return nil
}

// fail records err as the last error and returns it unchanged.
func (s *Session) fail(op string, err error) error {
	s.lastErr = err.Error()
	s.logger.Warn("session operation failed", logging.Op(op), zap.Error(err))
	return err
}

func (s *Session) newEvent(t audit.EventType) audit.Event {
	s.mu.Lock()
	database := s.params.Database
	s.mu.Unlock()
	return audit.NewEvent(t, database, s.clock.Now())
}

// publish ships an audit event. Failures are logged and never fail the
// database operation that produced the event.
func (s *Session) publish(ctx context.Context, event audit.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish audit event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
