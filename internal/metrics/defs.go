package metrics

const (
	namespace = "dmon_worker"

	// process health
	MetricUp = "dmon_worker_up"

	// push cycles
	MetricCyclesTotal   = "dmon_worker_cycles_total"
	MetricCycleDuration = "dmon_worker_cycle_duration_seconds"
	MetricLastSuccessTs = "dmon_worker_last_success_timestamp_seconds"
	MetricLastCycleTs   = "dmon_worker_last_cycle_timestamp_seconds"
	MetricPayloadBytes  = "dmon_worker_payload_bytes"

	// modules
	MetricModuleDuration    = "dmon_worker_module_duration_seconds"
	MetricModuleErrorsTotal = "dmon_worker_module_errors_total"
)

// values of the "result" label
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
