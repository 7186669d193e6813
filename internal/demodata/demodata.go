// Package demodata is a deterministic generator populating
// internal/sqlstore with a
// small distributed-system incident dataset (services, hosts, error logs,
// latency samples) so sql_query_tool and the bundled internal/plugin/
// catalog templates have something realistic to query in tests and the CLI
// demo. Explicitly a demo/test fixture, not a core-engine concern.
package demodata

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/microsoft/stepfly/internal/sqlstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_gateway_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	region TEXT NOT NULL,
	datacenter TEXT NOT NULL,
	environment TEXT NOT NULL,
	service_name TEXT NOT NULL,
	service_version TEXT NOT NULL,
	feature_flag TEXT,
	status_code INTEGER NOT NULL,
	latency_ms REAL NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS host_health_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	host TEXT NOT NULL,
	region TEXT NOT NULL,
	environment TEXT NOT NULL,
	service_name TEXT NOT NULL,
	cpu_percent REAL NOT NULL,
	memory_percent REAL NOT NULL
);
`

// Params configures the synthetic "Distributed_System_Low_Availability"
// incident dataset. Zero value yields Defaults().
type Params struct {
	Seed       int64
	StartTime  time.Time
	WindowSize int // number of one-minute samples generated
	Services   []string
	Regions    []string
	Hosts      []string
}

// Defaults returns the parameter set the bundled demo TSG and its plugin
// catalog are written against: a "checkout" regression on v1.5.0 starting
// halfway through a one-hour window.
func Defaults() Params {
	return Params{
		Seed:       42,
		StartTime:  time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC),
		WindowSize: 60,
		Services:   []string{"checkout", "inventory", "payments"},
		Regions:    []string{"eastus", "westus"},
		Hosts:      []string{"host-01", "host-02", "host-03", "host-04"},
	}
}

// Generate creates the schema (if absent) and inserts p.WindowSize minutes
// of synthetic request/host-health rows into db. Deterministic for a fixed
// Seed so tests can assert on exact plugin query output.
func Generate(ctx context.Context, db *sqlstore.DB, p Params) error {
	if p.WindowSize == 0 {
		p = Defaults()
	}
	rng := rand.New(rand.NewSource(p.Seed))

	for _, stmt := range splitStatements(schema) {
		if _, _, err := db.Query(ctx, stmt); err != nil {
			return fmt.Errorf("create demo schema: %w", err)
		}
	}

	for i := 0; i < p.WindowSize; i++ {
		ts := p.StartTime.Add(time.Duration(i) * time.Minute)
		regressing := i >= p.WindowSize/2

		for _, svc := range p.Services {
			for _, region := range p.Regions {
				if err := insertRequests(ctx, db, rng, ts, region, svc, regressing); err != nil {
					return err
				}
			}
		}
		for _, host := range p.Hosts {
			if err := insertHostHealth(ctx, db, rng, ts, host, p.Regions[rng.Intn(len(p.Regions))], regressing); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertRequests(ctx context.Context, db *sqlstore.DB, rng *rand.Rand, ts time.Time, region, svc string, regressing bool) error {
	version := "v1.4.0"
	failureChance := 0.02
	var flag any
	if regressing && svc == "checkout" {
		version = "v1.5.0"
		failureChance = 0.35
		flag = "new-payment-path"
	}

	requests := 20 + rng.Intn(10)
	for n := 0; n < requests; n++ {
		status := 200
		if rng.Float64() < failureChance {
			status = 503
		}
		latency := 40 + rng.Float64()*60
		retries := 0
		if status >= 500 {
			retries = rng.Intn(3)
		}
		insert := fmt.Sprintf(
			`INSERT INTO api_gateway_logs(timestamp, region, datacenter, environment, service_name, service_version, feature_flag, status_code, latency_ms, retry_count) VALUES ('%s', '%s', '%s', '%s', '%s', '%s', %s, %d, %.2f, %d)`,
			ts.Format("2006-01-02 15:04:05"), region, region+"-dc1", "prod", svc, version, sqlNullableString(flag), status, latency, retries,
		)
		if _, _, err := db.Query(ctx, insert); err != nil {
			return fmt.Errorf("insert demo log row: %w", err)
		}
	}
	return nil
}

func insertHostHealth(ctx context.Context, db *sqlstore.DB, rng *rand.Rand, ts time.Time, host, region string, regressing bool) error {
	cpu := 30 + rng.Float64()*20
	mem := 40 + rng.Float64()*15
	if regressing {
		cpu += 25
		mem += 20
	}
	insert := fmt.Sprintf(
		`INSERT INTO host_health_metrics(timestamp, host, region, environment, service_name, cpu_percent, memory_percent) VALUES ('%s', '%s', '%s', '%s', '%s', %.2f, %.2f)`,
		ts.Format("2006-01-02 15:04:05"), host, region, "prod", "checkout", cpu, mem,
	)
	_, _, err := db.Query(ctx, insert)
	if err != nil {
		return fmt.Errorf("insert demo host row: %w", err)
	}
	return nil
}

func sqlNullableString(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("'%s'", v)
}

func splitStatements(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
