package config

// EnvPrefix is intentionally empty: every variable carries the full
// CONVEXA_ prefix in its envconfig tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "CONVEXA_DB_DSN"
	EnvDBHost = "CONVEXA_DB_HOST"
	EnvDBUser = "CONVEXA_DB_USER"
	EnvDBName = "CONVEXA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
