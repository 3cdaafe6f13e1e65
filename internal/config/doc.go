/*
Package config loads the function's configuration.

Values are layered, lowest precedence first:

	defaults (NewDefault) → YAML file (--config) → environment

The environment keeps the deployment contract of the function:

	VISITOR_COUNTER_TABLE          counter table name (required)
	COUNTER_ID                     partition key value of the counter item
	AWS_REGION                     region for every client
	AWS_ENDPOINT_URL               endpoint override, for local stacks
	AWS_MAX_ATTEMPTS               SDK retry attempts
	AWS_RETRY_MODE                 standard | adaptive
	DYNAMODB_MAX_POOL_CONNECTIONS  idle connections kept per host
	SSL_INSTANCE_ID                renewal instance
	SSL_SNS_TOPIC_ARN              renewal notification topic
	RENEWAL_ESTIMATED_DURATION     ETA string returned by the trigger
	LOG_LEVEL, LOG_DEVELOPMENT     logger settings
	SERVER_ADDRESS                 listen address of the local server

Any other key is reachable as VISITORFN_<SECTION>_<KEY>, for example
VISITORFN_SERVER_ENABLE_METRICS=false.
*/
package config
