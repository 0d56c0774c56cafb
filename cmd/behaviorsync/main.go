package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/trustsignal/behaviorsync"
	"github.com/trustsignal/behaviorsync/internal"
)

var version = "0.3.0"

var (
	flagConfig   = flag.String("config", "", "Path to a YAML config file, optional")
	flagBindAddr = flag.String("port", "", "Bind address, overrides config")
	flagPostgres = flag.String("db", "", "Postgres DB connection string (see lib/pq docs), overrides config")
)

type config struct {
	BindAddr   string `yaml:"bindAddr"`
	DB         string `yaml:"db"`
	Prometheus bool   `yaml:"prometheus"`
	SentryDSN  string `yaml:"sentryDsn"`
	OTLP       struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"otlp"`
}

func defaultConfig() config {
	return config{
		BindAddr: ":8019",
		DB:       "user=postgres dbname=behaviorsync sslmode=disable",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	// env beats file, flags beat both
	if v := os.Getenv("BSYNC_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("BSYNC_DB"); v != "" {
		cfg.DB = v
	}
	if v := os.Getenv("BSYNC_SENTRY_DSN"); v != "" {
		cfg.SentryDSN = v
	}
	if v := os.Getenv("BSYNC_OTLP_URL"); v != "" {
		cfg.OTLP.URL = v
	}
	if v := os.Getenv("BSYNC_PROM"); v != "" {
		cfg.Prometheus = true
	}
	return cfg, nil
}

func main() {
	// .env is optional, envs may come from the process environment
	_ = godotenv.Load()
	flag.Parse()
	cfg, err := loadConfig(*flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *flagBindAddr != "" {
		cfg.BindAddr = *flagBindAddr
	}
	if *flagPostgres != "" {
		cfg.DB = *flagPostgres
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.SentryDSN,
			Release: version,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialise sentry: %s\n", err)
			os.Exit(1)
		}
		defer sentry.Flush(internal.SentryFlushTimeout)
	}
	if cfg.OTLP.URL != "" {
		if err := internal.ConfigureOTLP(cfg.OTLP.URL, cfg.OTLP.Username, cfg.OTLP.Password, version); err != nil {
			fmt.Fprintf(os.Stderr, "failed to configure OTLP exporter: %s\n", err)
			os.Exit(1)
		}
	}

	h, builder := behaviorsync.Setup(cfg.DB, behaviorsync.Opts{
		EnablePrometheus: cfg.Prometheus,
	})
	defer builder.Teardown()
	defer h.Teardown()
	behaviorsync.RunServer(h, cfg.BindAddr)
}
