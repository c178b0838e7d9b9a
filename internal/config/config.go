// Package config has the configuration structure, parsed from
// environment variables.
package config

import "time"

// Config contains configuration data for the trading engine.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// DatabaseURL is the Postgres DSN. Empty falls back to the
	// in-memory store (development only).
	DatabaseURL string `env:"DATABASE_URL"`

	// RedisURL enables the Redis price cache and ranked index.
	// Empty falls back to in-memory implementations.
	RedisURL string `env:"REDIS_URL"`

	FeedURL     string        `env:"FEED_URL" envDefault:"https://financialmodelingprep.com/api/v3/quote"`
	FeedAPIKey  string        `env:"FEED_API_KEY"`
	FeedTimeout time.Duration `env:"FEED_TIMEOUT" envDefault:"5s"`

	// Symbols is the fixed universe the price refresher polls.
	Symbols []string `env:"SYMBOLS" envSeparator:"," envDefault:"AAPL,MSFT,AMZN,GOOGL,META,NVDA,JNJ,V,PG,UNH,HD,MA,DIS,BAC,VZ,ADBE,NFLX,PFE,KO,NKE,MRK,INTC,CSCO,XOM,CVX,ORCL,CRM,PEP,IBM,MCD"`

	PriceRefreshInterval time.Duration `env:"PRICE_REFRESH_INTERVAL" envDefault:"30s"`
	LeaderboardInterval  time.Duration `env:"LEADERBOARD_INTERVAL" envDefault:"60s"`

	// StoreCacheTTL bounds staleness of the read-through store cache
	// when Redis is configured.
	StoreCacheTTL time.Duration `env:"STORE_CACHE_TTL" envDefault:"30s"`

	// LeaderboardTopK is how many entries the fast-read path retains.
	LeaderboardTopK int `env:"LEADERBOARD_TOP_K" envDefault:"10"`
}
