// Package config handles loading and validating Caseta Bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and option values
//   - Reading the per-hub credential files produced by pairing
//
// Security Considerations:
//   - Hub private keys live in separate files referenced by hubs[].key_file
//   - Passwords and tokens should be set via CASETABRIDGE_* environment variables
//   - The config file and key files should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Options.ClickSpeedDouble)
package config
