// Package config handles loading and validating media agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of identity, broker, asset and device declarations
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials and the InfluxDB token should be set via environment
//     variables (or an env file loaded before Load)
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.ID)
package config
