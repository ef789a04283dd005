// Package config loads the pipeline configuration.
//
// A configuration is a YAML document with two halves. The infrastructure
// sections (nats, mqtt, kafka, redis, postgres, influx, minio, metrics) hold
// shared endpoints that component factories fall back on. The tenants list
// describes one tenant engine each: its data stores, event sources (a decoder
// plus receivers), and the inbound and outbound processor chains.
//
// Every component entry names a factory type and carries free-form params:
//
//	tenants:
//	  - id: acme
//	    sources:
//	      - id: mqtt-json
//	        decoder: {type: json}
//	        receivers:
//	          - type: mqtt
//	            params: {topics: ["acme/+/input"]}
//	    inbound:
//	      - {type: registration, required: true}
//	      - {type: event-storage, required: true}
//	    outbound:
//	      - type: mqtt-publisher
//	        params: {topic: "acme/events"}
//
// # Loading
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // overrides base
//	cfg, err := loader.Load()
//
// Layers merge map by map; lists such as tenants are replaced whole.
// PIPELINE_* environment variables override endpoints and credentials, for
// example PIPELINE_NATS_URL, PIPELINE_POSTGRES_DSN, PIPELINE_KAFKA_BROKERS
// (comma separated) and PIPELINE_METRICS_PORT.
//
// Params are decoded by the factory that owns them with Params.Decode, which
// rejects unknown keys.
package config
