// Package config handles loading and validating nodeward configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load(config.ResolvePath(*configFlag))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Supervisor.Exec)
package config
