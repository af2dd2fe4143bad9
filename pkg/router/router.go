// Package router parses connection strings into source descriptors. It
// infers the backend from the URL scheme, applies alias rewrites for
// backend-flavored services (Redshift, ClickHouse), resolves the protocol
// variant, and detects TLS negotiation for backends where the physical
// connection type depends on it.
//
// A descriptor is immutable once parsed. The same descriptor that builds a
// connection pool also drives source selection, which is what makes the
// pool's typed accessors safe to call.
package router

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/sjtechdev/connector-x-pooling/pkg/cxerrors"
)

// Backend identifies a data-source kind.
type Backend int

const (
	BackendUnknown Backend = iota
	BackendPostgres
	BackendMySQL
	BackendSQLite
	BackendOracle
	BackendMsSQL
	BackendBigQuery
	BackendTrino
)

func (b Backend) String() string {
	switch b {
	case BackendPostgres:
		return "postgres"
	case BackendMySQL:
		return "mysql"
	case BackendSQLite:
		return "sqlite"
	case BackendOracle:
		return "oracle"
	case BackendMsSQL:
		return "mssql"
	case BackendBigQuery:
		return "bigquery"
	case BackendTrino:
		return "trino"
	default:
		return "unknown"
	}
}

// SupportsPooling reports whether the backend participates in the pool
// variant. MsSQL, BigQuery and Trino always use ephemeral connections.
func (b Backend) SupportsPooling() bool {
	switch b {
	case BackendPostgres, BackendMySQL, BackendSQLite, BackendOracle:
		return true
	default:
		return false
	}
}

// protocols lists the protocol variants each backend accepts. The first
// entry is the default when the caller supplies none.
var protocols = map[Backend][]string{
	BackendPostgres: {"binary", "csv", "cursor", "simple"},
	BackendMySQL:    {"binary", "text"},
	BackendSQLite:   {"single"},
	BackendOracle:   {"single"},
	BackendMsSQL:    {"single"},
	BackendBigQuery: {"single"},
	BackendTrino:    {"single"},
}

// SourceDescriptor is the parsed, normalized identity of one logical
// connection target. Immutable after ParseSource returns it.
type SourceDescriptor struct {
	Backend  Backend
	Conn     string // normalized connection string, canonical scheme
	Protocol string
	TLS      bool // Postgres only: negotiated TLS changes the pool tag
}

// ParseSource parses a connection string into a descriptor.
// defaultProtocol overrides the backend default when non-empty; a
// "+protocol" scheme suffix (for example postgres+cursor://) overrides
// both. Alias schemes are rewritten: redshift:// normalizes to Postgres
// with protocol cursor, clickhouse:// to MySQL with protocol text.
func ParseSource(connStr, defaultProtocol string) (*SourceDescriptor, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "cannot parse connection string")
	}
	if u.Scheme == "" {
		return nil, cxerrors.New(cxerrors.ErrorTypeInvalidConnectionString, "connection string has no scheme")
	}

	scheme := strings.ToLower(u.Scheme)
	proto := defaultProtocol
	if base, p, ok := strings.Cut(scheme, "+"); ok {
		scheme = base
		proto = p
	}

	var backend Backend
	switch scheme {
	case "postgres", "postgresql":
		backend = BackendPostgres
	case "redshift":
		// Redshift speaks the Postgres wire protocol but cannot handle the
		// extended binary encoding; server-side cursors bound its memory.
		backend = BackendPostgres
		if proto == "" {
			proto = "cursor"
		}
	case "mysql":
		backend = BackendMySQL
	case "clickhouse":
		// ClickHouse's MySQL compatibility layer only implements the text
		// protocol.
		backend = BackendMySQL
		if proto == "" {
			proto = "text"
		}
	case "sqlite":
		backend = BackendSQLite
	case "oracle":
		backend = BackendOracle
	case "mssql", "sqlserver":
		backend = BackendMsSQL
	case "bigquery":
		backend = BackendBigQuery
	case "trino":
		backend = BackendTrino
	default:
		return nil, cxerrors.Newf(cxerrors.ErrorTypeInvalidConnectionString, "unknown scheme %q", u.Scheme)
	}

	allowed := protocols[backend]
	if proto == "" {
		proto = allowed[0]
	}
	if !contains(allowed, proto) {
		return nil, cxerrors.Newf(cxerrors.ErrorTypeInvalidConnectionString,
			"protocol %q not valid for backend %s", proto, backend)
	}

	desc := &SourceDescriptor{
		Backend:  backend,
		Conn:     normalizeConn(backend, scheme, connStr, u),
		Protocol: proto,
	}
	if backend == BackendPostgres {
		desc.TLS = postgresTLS(u)
	}
	return desc, nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// normalizeConn rewrites the scheme to the backend's canonical one so
// drivers never see alias or protocol-suffixed schemes.
func normalizeConn(backend Backend, scheme, raw string, u *url.URL) string {
	canonical := backend.String()
	if backend == BackendMsSQL {
		canonical = "sqlserver"
	}
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return raw
	}
	return canonical + raw[idx:]
}

// postgresTLS reports whether the descriptor requests TLS negotiation.
// Follows libpq sslmode semantics: require and the verify modes negotiate
// TLS; disable, allow and prefer do not commit to it, so the plain
// connection type is used.
func postgresTLS(u *url.URL) bool {
	switch u.Query().Get("sslmode") {
	case "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

// SQLitePath extracts the database file path from a sqlite:// connection
// string. The scheme prefix is stripped textually (url.Path mangles
// Windows paths) and the remainder is percent-decoded before opening.
func SQLitePath(conn string) (string, error) {
	const prefix = "sqlite://"
	if !strings.HasPrefix(conn, prefix) {
		return "", cxerrors.Newf(cxerrors.ErrorTypeInvalidConnectionString, "not a sqlite connection string: %q", conn)
	}
	path, err := url.PathUnescape(conn[len(prefix):])
	if err != nil {
		return "", cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "cannot decode sqlite path")
	}
	return path, nil
}

// MySQLDSN converts a mysql:// URL into a go-sql-driver DSN. ParseTime is
// forced on so temporal columns scan as time.Time, and timestamps are read
// in UTC.
func MySQLDSN(conn string) (string, error) {
	u, err := url.Parse(conn)
	if err != nil {
		return "", cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "cannot parse mysql connection string")
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	for k, vs := range u.Query() {
		if len(vs) == 0 {
			continue
		}
		switch k {
		case "tls", "ssl-mode":
			cfg.TLSConfig = vs[0]
		case "timeout":
			if d, err := time.ParseDuration(vs[0]); err == nil {
				cfg.Timeout = d
			}
		}
	}
	return cfg.FormatDSN(), nil
}

// TrinoDSN converts a trino:// URL into the HTTP DSN the Trino driver
// expects. A tls=true query parameter selects https.
func TrinoDSN(conn string) (string, error) {
	u, err := url.Parse(conn)
	if err != nil {
		return "", cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "cannot parse trino connection string")
	}

	scheme := "http"
	q := u.Query()
	if q.Get("tls") == "true" || q.Get("ssl") == "true" {
		scheme = "https"
		q.Del("tls")
		q.Del("ssl")
	}

	// Path segments carry catalog and schema: trino://user@host/catalog/schema.
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && parts[0] != "" && q.Get("catalog") == "" {
		q.Set("catalog", parts[0])
	}
	if len(parts) > 1 && q.Get("schema") == "" {
		q.Set("schema", parts[1])
	}

	out := url.URL{Scheme: scheme, Host: u.Host, User: u.User, RawQuery: q.Encode()}
	return out.String(), nil
}

// BigQueryCredentials extracts the service-account credentials file path
// from a bigquery:// connection string.
func BigQueryCredentials(conn string) (string, error) {
	const prefix = "bigquery://"
	if !strings.HasPrefix(conn, prefix) {
		return "", cxerrors.Newf(cxerrors.ErrorTypeInvalidConnectionString, "not a bigquery connection string: %q", conn)
	}
	path, err := url.PathUnescape(conn[len(prefix):])
	if err != nil {
		return "", cxerrors.Wrap(err, cxerrors.ErrorTypeInvalidConnectionString, "cannot decode credentials path")
	}
	return path, nil
}
