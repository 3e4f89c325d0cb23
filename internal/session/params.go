package session

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Params describes the server a Session connects to.
type Params struct {
	Server   string
	Port     string
	Database string
	User     string
	Password string

	// ConnectTimeout bounds dialing the server. Zero keeps the driver default.
	ConnectTimeout time.Duration
}

// connection string keys, in the order they are written
var connStringKeys = []string{"SERVER", "PORT", "DATABASE", "UID", "PASSWORD"}

// ConnectionString renders the parameters as
// SERVER=<host>;PORT=<port>;DATABASE=<db>;UID=<user>;PASSWORD=<secret>;
func (p Params) ConnectionString() string {
	return formatConnString(p.Server, p.Port, p.Database, p.User, p.Password)
}

// Redacted is ConnectionString with the password masked, for logs.
func (p Params) Redacted() string {
	secret := ""
	if p.Password != "" {
		secret = "*****"
	}
	return formatConnString(p.Server, p.Port, p.Database, p.User, secret)
}

func formatConnString(values ...string) string {
	var b strings.Builder
	for i, key := range connStringKeys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(values[i])
		b.WriteByte(';')
	}
	return b.String()
}

// ParseConnectionString reads a string produced by ConnectionString. Keys
// are matched case-insensitively; unknown keys are rejected.
func ParseConnectionString(s string) (Params, error) {
	var p Params
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Params{}, fmt.Errorf("%w: malformed pair %q", ErrInvalidParams, part)
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "SERVER":
			p.Server = value
		case "PORT":
			p.Port = value
		case "DATABASE":
			p.Database = value
		case "UID":
			p.User = value
		case "PASSWORD":
			p.Password = value
		default:
			return Params{}, fmt.Errorf("%w: unknown key %q", ErrInvalidParams, key)
		}
	}
	return p, nil
}

func (p Params) validate() error {
	if p.Server == "" {
		return fmt.Errorf("%w: server is required", ErrInvalidParams)
	}
	if p.Port != "" {
		port, err := strconv.Atoi(p.Port)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%w: port %q is not a TCP port", ErrInvalidParams, p.Port)
		}
	}
	return nil
}

// DSN translates the parameters into a go-sql-driver/mysql data source name.
func (p Params) DSN() string {
	port := p.Port
	if port == "" {
		port = "3306"
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Server, port)
	cfg.DBName = p.Database
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.ParseTime = true
	cfg.Timeout = p.ConnectTimeout
	return cfg.FormatDSN()
}
