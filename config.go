// Package graph is the root package: the Graph Façade (component C8)
// bundling the connection pool, auth, default database, fetch size, and
// bookmark set into the handful of entry points application code actually
// calls. Grounded on the teacher driver's driver.go/boltConn
// (connection-string parsing, env-driven logging) generalized to the
// spec's full URI scheme set and configuration surface.
package graph

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	boltErrors "github.com/boltgraph/driver/errors"
	"github.com/boltgraph/driver/internal/boltlog"
)

// Config is every option the spec's external-interfaces table enumerates.
// Build one with ParseURI plus field overrides, or by hand for
// programmatic construction.
type Config struct {
	Host     string
	Port     int
	Database string // empty selects the server default

	User     string
	Password string

	FetchSize         int64
	MaxConnections    int
	ConnectionTimeout time.Duration
	AcquireTimeout    time.Duration
	MaxLifetime       time.Duration
	IdleTimeout       time.Duration

	// TLSConfig, when non-nil, makes every connection use TLS with this
	// config verbatim. ParseURI sets a zero-value *tls.Config{} for +s
	// schemes, one with InsecureSkipVerify for +ssc schemes, and nil for
	// plain bolt/neo4j; callers may replace it afterwards.
	TLSConfig *tls.Config

	UserAgent string

	insecureScheme bool // neo4j/bolt (no +s/+ssc suffix): plaintext TCP
}

// DefaultConfig seeds the spec's §6 defaults for every option that has
// one; Host/Port/auth still need to come from ParseURI or explicit
// assignment.
func DefaultConfig() Config {
	return Config{
		Port:              7687,
		FetchSize:         1000,
		MaxConnections:    16,
		ConnectionTimeout: 30 * time.Second,
		AcquireTimeout:    60 * time.Second,
		UserAgent:         "boltgraph-driver/1.0",
	}
}

// ParseURI parses a Bolt/Neo4j connection URI per the spec's §6 grammar:
// scheme://[user[:pass]@]host[:port][/db]. Recognized schemes are bolt,
// bolt+s, bolt+ssc, neo4j, neo4j+s, neo4j+ssc; a URI with no scheme has
// "bolt://" prepended. The neo4j scheme is accepted and treated
// identically to bolt (this core is not routing-aware — see
// SPEC_FULL.md's non-goals).
func ParseURI(raw string) (Config, error) {
	cfg := DefaultConfig()

	if !strings.Contains(raw, "://") {
		raw = "bolt://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Config{}, boltErrors.Classify(fmt.Errorf("invalid connection URI: %w", err), boltErrors.KindProtocol)
	}

	scheme := strings.ToLower(u.Scheme)
	base, tlsMode, ok := splitScheme(scheme)
	if !ok {
		return Config{}, boltErrors.Classify(fmt.Errorf("unsupported connection scheme %q", u.Scheme), boltErrors.KindProtocol)
	}
	if base != "bolt" && base != "neo4j" {
		return Config{}, boltErrors.Classify(fmt.Errorf("unsupported connection scheme %q", u.Scheme), boltErrors.KindProtocol)
	}
	if base == "neo4j" {
		boltlog.Warnf("scheme %q is treated identically to bolt: this driver core is not routing-aware", u.Scheme)
	}

	switch tlsMode {
	case tlsNone:
		cfg.insecureScheme = true
	case tlsSystem:
		cfg.TLSConfig = &tls.Config{}
	case tlsSelfSigned:
		cfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	cfg.Host = u.Hostname()
	if cfg.Host == "" {
		return Config{}, boltErrors.Classify(fmt.Errorf("connection URI missing host: %q", raw), boltErrors.KindProtocol)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Config{}, boltErrors.Classify(fmt.Errorf("invalid port %q: %w", p, err), boltErrors.KindProtocol)
		}
		cfg.Port = port
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		cfg.Database = db
	}
	return cfg, nil
}

type tlsMode int

const (
	tlsNone tlsMode = iota
	tlsSystem
	tlsSelfSigned
)

func splitScheme(scheme string) (base string, mode tlsMode, ok bool) {
	switch scheme {
	case "bolt", "neo4j":
		return scheme, tlsNone, true
	case "bolt+s", "neo4j+s":
		return strings.TrimSuffix(scheme, "+s"), tlsSystem, true
	case "bolt+ssc", "neo4j+ssc":
		return strings.TrimSuffix(scheme, "+ssc"), tlsSelfSigned, true
	default:
		return "", tlsNone, false
	}
}

// Address returns the host:port dial target.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthToken builds the Bolt auth_token map from User/Password, per the
// teacher driver's InitMessage auth scheme ("none" with no credentials,
// "basic" with principal/credentials otherwise).
func (c Config) AuthToken() map[string]any {
	if c.User == "" && c.Password == "" {
		return map[string]any{"scheme": "none"}
	}
	return map[string]any{
		"scheme":      "basic",
		"principal":   c.User,
		"credentials": c.Password,
	}
}
