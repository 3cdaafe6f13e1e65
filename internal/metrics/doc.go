/*
Package metrics records Prometheus metrics for the visitor function.

Recorder owns a private prometheus.Registry, so several recorders can live in
one process (tests, the CLI) without colliding on the default registry.

Exported series, all under the visitorfn namespace:

	requests_total{route,method,code}     handled requests
	request_duration_seconds{route}       request latency
	backend_errors_total{backend,code}    failed DynamoDB, EC2 and SNS calls
	counter_value                         last observed visitor count
	renewal_triggers_total{result}        renewal trigger outcomes

Config.Labels become constant labels on every series; the adapter sets
table and counter_id.

Every method is safe on a nil *Recorder, so components take a recorder
without checking whether metrics are enabled.
*/
package metrics
