// Package config loads the iqrfgw client configuration.
//
// A configuration is built from the defaults, then any number of file layers, then
// environment overrides. Layers are JSON or YAML files chosen by extension and are deep
// merged, so a later layer only needs the keys it changes:
//
//	loader := config.NewLoader()
//	loader.AddLayer("/etc/iqrfgw/base.yaml")
//	loader.AddLayer("site.json")
//	cfg, err := loader.Load()
//
// Environment variables prefixed with IQRFGW_ override selected keys, for example
// IQRFGW_TRANSPORT=nats or IQRFGW_WS_URL=ws://gateway:1338.
//
// Transport sections are kept as raw JSON and handed to the transport factories, which
// own their validation. LoadDaemonMqConfig reads the daemon's own MqMessaging file so the
// POSIX MQ transport can derive its queue names.
package config
