package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"consigned-credit/internal/domain/terms"
	"consigned-credit/internal/infrastructure/db"
)

type Config struct {
	AppPort string

	LogLevel  string
	LogFormat string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	DBMaxOpenConns int
	DBMaxIdleConns int
	DBSlowQueryMs  int

	RedisEnabled bool
	RedisAddr    string
	RedisDB      int

	IdempTTLSecs    int
	SimCacheTTLSecs int
	NotifyChannel   string

	// engine policy, see terms.Policy
	MarginCapRatio       string
	MarginMaxInstallment string
	IOFDailyRate         string
	IOFAdditionalRate    string
	IOFMaxDays           int
	CETInitialGuess      float64
	CETTolerance         float64
	CETMaxIterations     int
	RateTolerance        string
	CurrencyScale        int
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvFloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

// LoadDotEnv copies KEY=VALUE pairs from the given files (".env" when none)
// into the process environment. Variables already set win; missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() *Config {
	return &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "consigned"),
		MySQLUser: getenv("MYSQL_USER", "consigned"),
		MySQLPass: getenv("MYSQL_PASS", "consigned"),

		DBMaxOpenConns: getenvInt("DB_MAX_OPEN_CONNS", 30),
		DBMaxIdleConns: getenvInt("DB_MAX_IDLE_CONNS", 10),
		DBSlowQueryMs:  getenvInt("DB_SLOW_QUERY_MS", 200),

		RedisEnabled: getenvBool("REDIS_ENABLED", true),
		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		RedisDB:      getenvInt("REDIS_DB", 0),

		IdempTTLSecs:    getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),
		SimCacheTTLSecs: getenvInt("SIMULATION_CACHE_TTL_SECONDS", 3600),
		NotifyChannel:   getenv("NOTIFY_CHANNEL", "consigned:proposals"),

		MarginCapRatio:       getenv("MARGIN_CAP_RATIO", "0.30"),
		MarginMaxInstallment: getenv("MARGIN_MAX_INSTALLMENT", "0"),
		IOFDailyRate:         getenv("IOF_DAILY_RATE", "0.000082"),
		IOFAdditionalRate:    getenv("IOF_ADDITIONAL_RATE", "0.0038"),
		IOFMaxDays:           getenvInt("IOF_MAX_DAYS", 0),
		CETInitialGuess:      getenvFloat("CET_INITIAL_GUESS", 0.02),
		CETTolerance:         getenvFloat("CET_TOLERANCE", 1e-4),
		CETMaxIterations:     getenvInt("CET_MAX_ITERATIONS", 100),
		RateTolerance:        getenv("RATE_TOLERANCE", "0.0001"),
		CurrencyScale:        getenvInt("CURRENCY_SCALE", 2),
	}
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.DBMaxOpenConns <= 0 || c.DBMaxIdleConns < 0 {
		return errors.New("DB_MAX_OPEN_CONNS must be positive and DB_MAX_IDLE_CONNS not negative")
	}
	if c.SimCacheTTLSecs <= 0 {
		return errors.New("SIMULATION_CACHE_TTL_SECONDS must be positive")
	}
	p, err := c.Policy()
	if err != nil {
		return err
	}
	return p.Validate()
}

// Policy parses the engine policy values.
func (c *Config) Policy() (terms.Policy, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		return d, nil
	}
	capRatio, err := parse("MARGIN_CAP_RATIO", c.MarginCapRatio)
	if err != nil {
		return terms.Policy{}, err
	}
	ceiling, err := parse("MARGIN_MAX_INSTALLMENT", c.MarginMaxInstallment)
	if err != nil {
		return terms.Policy{}, err
	}
	daily, err := parse("IOF_DAILY_RATE", c.IOFDailyRate)
	if err != nil {
		return terms.Policy{}, err
	}
	additional, err := parse("IOF_ADDITIONAL_RATE", c.IOFAdditionalRate)
	if err != nil {
		return terms.Policy{}, err
	}
	rateTol, err := parse("RATE_TOLERANCE", c.RateTolerance)
	if err != nil {
		return terms.Policy{}, err
	}
	return terms.Policy{
		CapRatio:          capRatio,
		MaxInstallment:    ceiling,
		IOFDailyRate:      daily,
		IOFAdditionalRate: additional,
		IOFMaxDays:        c.IOFMaxDays,
		CETInitialGuess:   c.CETInitialGuess,
		CETTolerance:      c.CETTolerance,
		CETMaxIterations:  c.CETMaxIterations,
		RateTolerance:     rateTol,
		CurrencyScale:     int32(c.CurrencyScale),
	}, nil
}

func (c *Config) DBPool() db.Pool {
	p := db.DefaultPool()
	p.MaxOpen = c.DBMaxOpenConns
	p.MaxIdle = c.DBMaxIdleConns
	p.SlowQuery = time.Duration(c.DBSlowQueryMs) * time.Millisecond
	return p
}

func (c *Config) SimCacheTTL() time.Duration { return time.Duration(c.SimCacheTTLSecs) * time.Second }

func (c *Config) IdempTTL() time.Duration { return time.Duration(c.IdempTTLSecs) * time.Second }

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
