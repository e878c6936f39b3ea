package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort string

	// Driver is "sqlite" or "mysql". Sqlite is the default for local and
	// single-node deployments.
	DBDriver string
	DBDSN    string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr        string
	RedisDB          int
	RedisDialTimeout time.Duration

	IdempTTLSecs int

	// Price feed
	PriceFeedURL string
	PriceTTL     time.Duration

	// Risk monitor
	RiskInterval      time.Duration
	WarnThreshold     float64
	LiquidateThresh   float64
	WorkerPollEvery   time.Duration
	QueueWorkers      int
	QueueMaxRetries   int
	QueueRetryBackoff time.Duration

	// Chain
	ChainID            int64
	CoordinatorAddress string

	// Terms of service
	TermsFile    string
	TermsVersion string

	// Fiat rail (Monerium-style)
	RailBaseURL string
	RailToken   string

	// BTC.b bridge
	BridgeBaseURL string
	BridgeToken   string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getfloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}

func getdur(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
	}
	return d
}

func Load() *Config {
	c := &Config{
		AppPort: getenv("APP_PORT", "8080"),

		DBDriver: getenv("DB_DRIVER", "sqlite"),
		DBDSN:    getenv("DB_DSN", "data/cryptoloans.db"),

		MySQLHost: getenv("MYSQL_HOST", ""),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "cryptoloans"),
		MySQLUser: getenv("MYSQL_USER", "cryptoloans"),
		MySQLPass: getenv("MYSQL_PASS", ""),

		RedisAddr:        getenv("REDIS_ADDR", ""),
		RedisDB:          getint("REDIS_DB", 0),
		RedisDialTimeout: getdur("REDIS_DIAL_TIMEOUT", 5*time.Second),
		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		PriceFeedURL: getenv("PRICE_FEED_URL", "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=eur"),
		PriceTTL:     getdur("PRICE_TTL", 60*time.Second),

		RiskInterval:      getdur("RISK_CHECK_INTERVAL", 60*time.Second),
		WarnThreshold:     getfloat("LTV_WARN_THRESHOLD", 0.65),
		LiquidateThresh:   getfloat("LTV_LIQUIDATE_THRESHOLD", 0.70),
		WorkerPollEvery:   getdur("CHAIN_POLL_INTERVAL", 15*time.Second),
		QueueWorkers:      getint("QUEUE_WORKERS", 4),
		QueueMaxRetries:   getint("QUEUE_MAX_RETRIES", 5),
		QueueRetryBackoff: getdur("QUEUE_RETRY_BACKOFF", 2*time.Second),

		ChainID:            int64(getint("CHAIN_ID", 43114)),
		CoordinatorAddress: getenv("COORDINATOR_ADDRESS", ""),

		TermsFile:    getenv("TERMS_FILE", "terms.txt"),
		TermsVersion: getenv("TERMS_VERSION", "1"),

		RailBaseURL: getenv("RAIL_BASE_URL", ""),
		RailToken:   getenv("RAIL_TOKEN", ""),

		BridgeBaseURL: getenv("BRIDGE_BASE_URL", ""),
		BridgeToken:   getenv("BRIDGE_TOKEN", ""),
	}
	return c
}

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBDSN == "" {
			return errors.New("missing DB_DSN for sqlite driver")
		}
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.LiquidateThresh <= c.WarnThreshold {
		return fmt.Errorf("LTV_LIQUIDATE_THRESHOLD (%v) must exceed LTV_WARN_THRESHOLD (%v)", c.LiquidateThresh, c.WarnThreshold)
	}
	return nil
}

func (c *Config) IdempTTL() time.Duration { return time.Duration(c.IdempTTLSecs) * time.Second }

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// DSN resolves the configured driver to its connection string.
func (c *Config) DSN() string {
	if c.DBDriver == "mysql" {
		return c.MySQLDSN()
	}
	return c.DBDSN
}
