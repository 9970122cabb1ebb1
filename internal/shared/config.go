package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	SourceFiles = "files"
	SourceMySQL = "mysql"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	LogFile     string

	DataSource      string // files | mysql
	MetaURL         string
	AvailabilityURL string
	MySQLDSN        string

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	RefreshEvery time.Duration
	FetchRPS     int
	Workers      int
	Timezone     string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric setting")
		}
		return def
	}
	c := Config{
		AppEnv:          env("APP_ENV", "prod"),
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		MetricsAddr:     env("METRICS_ADDR", ":9100"),
		LogFile:         env("LOG_FILE", ""),
		DataSource:      strings.ToLower(env("DATA_SOURCE", SourceFiles)),
		MetaURL:         env("META_URL", "data/refuges_meta.json"),
		AvailabilityURL: env("AVAILABILITY_URL", "data/refuges_availability.json"),
		MySQLDSN:        env("MYSQL_DSN", "root:root@tcp(localhost:3306)/refuges?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:       env("REDIS_ADDR", ""),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		RefreshEvery:    time.Duration(atoi("REFRESH_SECONDS", 600)) * time.Second,
		FetchRPS:        atoi("FETCH_RPS", 2),
		Workers:         atoi("INGEST_WORKERS", 8),
		Timezone:        env("TIMEZONE", "Europe/Paris"),
	}
	if c.DataSource != SourceFiles && c.DataSource != SourceMySQL {
		log.Warn().Str("data_source", c.DataSource).Msg("unknown DATA_SOURCE, using files")
		c.DataSource = SourceFiles
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
