package config

import (
	"flag"
	"os"
	"time"
)

var (
	RunAddress         string
	DatabaseURI        string
	LogLevel           string
	JWTSecret          string
	NotifierAddress    string
	RiskWorkerInterval time.Duration
)

func ParseFlags() {

	flag.StringVar(&RunAddress, "a", ":8080", "address to run server")
	flag.StringVar(&DatabaseURI, "d", "", "database uri (in-memory store when empty)")
	flag.StringVar(&LogLevel, "l", "info", "log level")
	flag.StringVar(&JWTSecret, "s", "marketd-dev-secret", "jwt signing secret")
	flag.StringVar(&NotifierAddress, "n", "", "notification dispatcher address")
	flag.DurationVar(&RiskWorkerInterval, "w", 5*time.Minute, "risk rescoring interval")
	flag.Parse()

	if envRunAddr := os.Getenv("RUN_ADDRESS"); envRunAddr != "" {
		RunAddress = envRunAddr
	}
	if databaseURI := os.Getenv("DATABASE_URI"); databaseURI != "" {
		DatabaseURI = databaseURI
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		LogLevel = logLevel
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		JWTSecret = secret
	}
	if notifier := os.Getenv("NOTIFIER_ADDRESS"); notifier != "" {
		NotifierAddress = notifier
	}
	if interval := os.Getenv("RISK_WORKER_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			RiskWorkerInterval = d
		}
	}
}
