package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

const (
	upgradeHistoryTable = "upgradehistory"
	deviceIndex         = "device_id"
)

var (
	tables = []string{upgradeHistoryTable}
)

// A RethinkStore is the database access layer for rethinkdb.
type RethinkStore struct {
	*zap.SugaredLogger
	session   r.QueryExecutor
	dbsession *r.Session

	dbname string
	dbuser string
	dbpass string
	dbhost string
}

// New creates a new rethink store.
func New(log *zap.SugaredLogger, dbhost string, dbname string, dbuser string, dbpass string) *RethinkStore {
	return &RethinkStore{
		SugaredLogger: log.Named("rethinkdb"),
		dbhost:        dbhost,
		dbname:        dbname,
		dbuser:        dbuser,
		dbpass:        dbpass,
	}
}

func multi(ctx context.Context, session r.QueryExecutor, tt ...r.Term) error {
	for _, t := range tt {
		if err := t.Exec(session, r.ExecOpts{Context: ctx}); err != nil {
			return err
		}
	}
	return nil
}

// Health checks if the connection to the database is ok.
func (rs *RethinkStore) Health(ctx context.Context) error {
	return multi(ctx, rs.session,
		r.Branch(
			r.Expr(tables).Difference(rs.db().TableList()).Count().Eq(0),
			r.Expr(true),
			r.Error("required tables are missing")),
	)
}

// Initialize creates missing tables and indices, it should be called every time
// the application comes up before using the data store.
func (rs *RethinkStore) Initialize(ctx context.Context) error {
	return rs.initializeTables(ctx, r.TableCreateOpts{Shards: 1, Replicas: 1})
}

func (rs *RethinkStore) initializeTables(ctx context.Context, opts r.TableCreateOpts) error {
	db := rs.db()

	err := multi(ctx, rs.session,
		r.Expr(tables).Difference(db.TableList()).ForEach(func(r r.Term) r.Term {
			return db.TableCreate(r, opts)
		}),
		db.Table(upgradeHistoryTable).IndexList().Contains(deviceIndex).Do(func(i r.Term) r.Term {
			return r.Branch(i, nil, db.Table(upgradeHistoryTable).IndexCreate(deviceIndex))
		}),
	)
	if err != nil {
		return err
	}

	rs.Infow("tables successfully initialized")
	return nil
}

func (rs *RethinkStore) upgradeHistoryTable() *r.Term {
	res := r.DB(rs.dbname).Table(upgradeHistoryTable)
	return &res
}
func (rs *RethinkStore) db() *r.Term {
	res := r.DB(rs.dbname)
	return &res
}

// Mock return the mock from the rethinkdb driver and sets the
// session to this mock. This MUST NOT be called in productive code.
func (rs *RethinkStore) Mock() *r.Mock {
	m := r.NewMock()
	rs.session = m
	return m
}

// Close closes the database session.
func (rs *RethinkStore) Close() error {
	if rs.dbsession != nil {
		err := rs.dbsession.Close()
		if err != nil {
			return err
		}
	}
	rs.Info("Rethinkstore disconnected")
	return nil
}

// Connect connects to the database. It retries until there is a connection
// or ctx is done.
func (rs *RethinkStore) Connect(ctx context.Context) error {
	session, err := retryConnect(ctx, rs.SugaredLogger, []string{rs.dbhost}, rs.dbname, rs.dbuser, rs.dbpass)
	if err != nil {
		return err
	}
	rs.dbsession = session
	rs.session = session
	rs.Info("Rethinkstore connected")
	return nil
}

func connect(hosts []string, dbname, user, pwd string) (*r.Session, error) {
	session, err := r.Connect(r.ConnectOpts{
		Addresses: hosts,
		Database:  dbname,
		Username:  user,
		Password:  pwd,
		MaxIdle:   10,
		MaxOpen:   20,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB: %w", err)
	}

	err = r.DBList().Contains(dbname).Do(func(row r.Term) r.Term {
		return r.Branch(row, nil, r.DBCreate(dbname))
	}).Exec(session)
	if err != nil {
		return nil, fmt.Errorf("cannot create database: %w", err)
	}

	return session, nil
}

// retryConnect tries to establish a database connection until it succeeds
// or ctx is done, waiting a short period of time between the attempts.
func retryConnect(ctx context.Context, log *zap.SugaredLogger, hosts []string, dbname, user, pwd string) (*r.Session, error) {
	return retry.DoWithData(
		func() (*r.Session, error) {
			return connect(hosts, dbname, user, pwd)
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(3*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Errorw("db connection error", "db", dbname, "hosts", hosts, "attempt", n+1, "error", err)
		}),
	)
}

func (rs *RethinkStore) searchEntities(ctx context.Context, query *r.Term, entity any) error {
	res, err := query.Run(rs.session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("cannot search %s in database: %w", upgradeHistoryTable, err)
	}
	defer res.Close()

	err = res.All(entity)
	if err != nil {
		return fmt.Errorf("cannot fetch all entities: %w", err)
	}
	return nil
}
