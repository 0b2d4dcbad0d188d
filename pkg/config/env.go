package config

// Environment constants, checked by DatabaseConfig.Validate against the
// MCARE_SERVER_ENVIRONMENT value Viper binds into ServerConfig.Environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)
