package config

var AppVersion = "DEVELOPMENT"

const (
	AppName       = "portguard"
	LogFile       = "core.log"
	CfgFile       = "config.toml"
	SchemaVersion = 1

	// PortEnv overrides the configured target port without touching the
	// config file, matching the provisioning line's deployment scripts.
	PortEnv = "PORTGUARD_PORT"
)
