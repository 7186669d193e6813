// Package catalog ships the Distributed_System_Low_Availability plugin
// set: a concrete TSG plugin catalog paired with the demo TSG/incident
// data this repo generates for its own tests. Templates query the
// api_gateway_logs/host_health_metrics schema internal/demodata materializes.
package catalog

import "github.com/microsoft/stepfly/internal/plugin"

var commonParams = []string{"start_time", "end_time", "region", "environment", "service_name"}

// Templates returns the plugin set registered for the
// "Distributed_System_Low_Availability" TSG, covering version regressions,
// feature flags, and regional health.
func Templates() []plugin.Template {
	return []plugin.Template{
		versionRegression,
		featureFlagRegression,
		regionalAvailability,
		hostHealth,
		retryStorm,
	}
}

var versionRegression = plugin.Template{
	PluginID:    "plugin_1",
	Description: "Generates a SQL query for service version regression analysis to detect regressions.",
	SourceTSG:   "Distributed_System_Low_Availability",
	Language:    "sql",
	RequiredParams: commonParams,
	Body: `
SELECT
	service_version,
	COUNT(*) AS total_requests,
	SUM(CASE WHEN status_code >= 500 THEN 1 ELSE 0 END) AS failed_requests,
	ROUND(100.0 * SUM(CASE WHEN status_code >= 500 THEN 1 ELSE 0 END) / COUNT(*), 2) AS failure_rate
FROM api_gateway_logs
WHERE timestamp BETWEEN '{{.start_time}}' AND '{{.end_time}}'
	AND region = '{{.region}}'
	AND environment = '{{.environment}}'
	AND service_name = '{{.service_name}}'
GROUP BY service_version
ORDER BY service_version DESC
LIMIT 5
`,
}

var featureFlagRegression = plugin.Template{
	PluginID:    "plugin_2",
	Description: "Generates a SQL query to identify feature flags correlated with reliability regressions.",
	SourceTSG:   "Distributed_System_Low_Availability",
	Language:    "sql",
	RequiredParams: commonParams,
	Body: `
SELECT
	feature_flag,
	COUNT(*) AS total_requests,
	SUM(CASE WHEN status_code >= 500 THEN 1 ELSE 0 END) AS failed_requests
FROM api_gateway_logs
WHERE timestamp BETWEEN '{{.start_time}}' AND '{{.end_time}}'
	AND region = '{{.region}}'
	AND environment = '{{.environment}}'
	AND service_name = '{{.service_name}}'
	AND feature_flag IS NOT NULL
GROUP BY feature_flag
HAVING failed_requests > 0
ORDER BY failed_requests DESC
LIMIT 10
`,
}

var regionalAvailability = plugin.Template{
	PluginID:    "plugin_3",
	Description: "Generates a SQL query for comprehensive regional and datacenter availability metrics.",
	SourceTSG:   "Distributed_System_Low_Availability",
	Language:    "sql",
	RequiredParams: []string{"start_time", "end_time", "environment", "service_name"},
	Body: `
SELECT
	region,
	datacenter,
	COUNT(*) AS total_requests,
	ROUND(AVG(latency_ms), 2) AS avg_latency_ms,
	SUM(CASE WHEN status_code >= 500 THEN 1 ELSE 0 END) AS failed_requests
FROM api_gateway_logs
WHERE timestamp BETWEEN '{{.start_time}}' AND '{{.end_time}}'
	AND environment = '{{.environment}}'
	AND service_name = '{{.service_name}}'
GROUP BY region, datacenter
ORDER BY failed_requests DESC
`,
}

var hostHealth = plugin.Template{
	PluginID:    "plugin_4",
	Description: "Generates a SQL query analyzing host-level health, CPU and memory pressure during the incident window.",
	SourceTSG:   "Distributed_System_Low_Availability",
	Language:    "sql",
	RequiredParams: commonParams,
	Body: `
SELECT
	host,
	ROUND(AVG(cpu_percent), 2) AS avg_cpu_percent,
	ROUND(AVG(memory_percent), 2) AS avg_memory_percent,
	COUNT(*) AS sample_count
FROM host_health_metrics
WHERE timestamp BETWEEN '{{.start_time}}' AND '{{.end_time}}'
	AND region = '{{.region}}'
	AND environment = '{{.environment}}'
	AND service_name = '{{.service_name}}'
GROUP BY host
ORDER BY avg_cpu_percent DESC
LIMIT 20
`,
}

var retryStorm = plugin.Template{
	PluginID:    "plugin_5",
	Description: "Generates a SQL query detecting retry storms: requests whose retry_count spikes within the analysis window.",
	SourceTSG:   "Distributed_System_Low_Availability",
	Language:    "sql",
	RequiredParams: commonParams,
	Body: `
SELECT
	strftime('%Y-%m-%d %H:%M:00', timestamp) AS time_bucket,
	SUM(retry_count) AS total_retries,
	COUNT(*) AS total_requests,
	ROUND(1.0 * SUM(retry_count) / COUNT(*), 2) AS avg_retries_per_request
FROM api_gateway_logs
WHERE timestamp BETWEEN '{{.start_time}}' AND '{{.end_time}}'
	AND region = '{{.region}}'
	AND environment = '{{.environment}}'
	AND service_name = '{{.service_name}}'
GROUP BY time_bucket
ORDER BY avg_retries_per_request DESC
LIMIT 10
`,
}
