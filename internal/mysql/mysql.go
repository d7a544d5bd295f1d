// Package mysql configures the local MySQL server after installation.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/system"
)

// Unit is the systemd unit Ubuntu's mysql-server package installs.
const Unit = "mysql"

// Packages installs the server and the CLI client.
var Packages = []system.Package{
	{Name: "mysql-server", Command: "mysqld"},
	{Name: "mysql-client", Command: "mysql"},
}

// secureStatements are what mysql_secure_installation runs when every prompt is answered "yes".
var secureStatements = []string{
	"DELETE FROM mysql.user WHERE User=''",
	"DELETE FROM mysql.user WHERE User='root' AND Host NOT IN ('localhost', '127.0.0.1', '::1')",
	"DROP DATABASE IF EXISTS test",
	"DELETE FROM mysql.db WHERE Db='test' OR Db='test\\_%'",
	"FLUSH PRIVILEGES",
}

// leftoverQuery counts everything secureStatements would remove.
const leftoverQuery = `SELECT
  (SELECT COUNT(*) FROM mysql.user WHERE User='') +
  (SELECT COUNT(*) FROM mysql.user WHERE User='root' AND Host NOT IN ('localhost', '127.0.0.1', '::1')) +
  (SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name='test') +
  (SELECT COUNT(*) FROM mysql.db WHERE Db='test' OR Db='test\\_%')`

// Conn is the slice of database/sql the manager needs.
type Conn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string) error
	Count(ctx context.Context, query string) (int, error)
	Close() error
}

// Opener connects as root with the given password.
type Opener func(ctx context.Context, socket, password string) (Conn, error)

// Manager sets the root password and hardens a fresh install.
type Manager struct {
	Runner   system.Runner
	Socket   string
	Password string
	Open     Opener
}

// New returns a Manager that talks to the server over its unix socket.
func New(r system.Runner, socket, password string) *Manager {
	return &Manager{Runner: r, Socket: socket, Password: password, Open: OpenSocket}
}

// RootPasswordSet reports whether root can log in with the configured password.
func (m *Manager) RootPasswordSet(ctx context.Context) bool {
	conn, err := m.Open(ctx, m.Socket, m.Password)
	if err != nil {
		return false
	}
	defer conn.Close()
	return conn.Ping(ctx) == nil
}

// SetRootPassword switches root from auth_socket to a password. On a fresh
// install the root OS user can log in without a password, which is what the
// mysql client relies on here. The SQL goes over stdin to keep the password out of argv.
func (m *Manager) SetRootPassword(ctx context.Context) error {
	if m.Password == "" {
		return fmt.Errorf("root password is empty")
	}
	sql := fmt.Sprintf(
		"ALTER USER 'root'@'localhost' IDENTIFIED WITH caching_sha2_password BY '%s';\nFLUSH PRIVILEGES;\n",
		QuoteString(m.Password),
	)
	if _, err := m.Runner.RunWithInput(ctx, sql, "mysql", "-u", "root"); err != nil {
		return fmt.Errorf("set root password: %w", err)
	}
	return nil
}

// Secured reports whether nothing is left for SecureInstallation to remove.
func (m *Manager) Secured(ctx context.Context) (bool, error) {
	conn, err := m.Open(ctx, m.Socket, m.Password)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	n, err := conn.Count(ctx, leftoverQuery)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// SecureInstallation removes anonymous users, remote root logins and the test database.
func (m *Manager) SecureInstallation(ctx context.Context) error {
	conn, err := m.Open(ctx, m.Socket, m.Password)
	if err != nil {
		return fmt.Errorf("connect as root: %w", err)
	}
	defer conn.Close()
	for _, stmt := range secureStatements {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// QuoteString escapes s for a single-quoted SQL literal.
func QuoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return r.Replace(s)
}

// DSN builds the driver DSN for a root login over socket.
func DSN(socket, password string) string {
	cfg := driver.NewConfig()
	cfg.User = "root"
	cfg.Passwd = password
	cfg.Net = "unix"
	cfg.Addr = socket
	cfg.Timeout = 5 * time.Second
	return cfg.FormatDSN()
}

// OpenSocket is the production Opener.
func OpenSocket(ctx context.Context, socket, password string) (Conn, error) {
	db, err := sql.Open("mysql", DSN(socket, password))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &sqlConn{db: db}, nil
}

type sqlConn struct{ db *sql.DB }

func (c *sqlConn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *sqlConn) Exec(ctx context.Context, query string) error {
	_, err := c.db.ExecContext(ctx, query)
	return err
}

func (c *sqlConn) Count(ctx context.Context, query string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, query).Scan(&n)
	return n, err
}

func (c *sqlConn) Close() error { return c.db.Close() }
