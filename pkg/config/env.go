package config

const EnvPrefix = "OHYA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverSQLite     = "sqlite"
	DBDriverPostgres   = "postgres"
	DBDriverServerless = "serverless"

	UploadsBackendLocal = "local"
	UploadsBackendGCS   = "gcs"
)

const (
	EnvAppEnv   = "OHYA_APP_ENV"
	EnvPort     = "OHYA_APP_PORT"
	EnvLogLevel = "OHYA_LOG_LEVEL"

	EnvDBDSN        = "OHYA_DB_DSN"
	EnvDBDriver     = "OHYA_DB_DRIVER"
	EnvDBSQLitePath = "OHYA_DB_SQLITE_PATH"
	EnvDBHost       = "OHYA_DB_HOST"
	EnvDBPort       = "OHYA_DB_PORT"
	EnvDBUser       = "OHYA_DB_USER"
	EnvDBPassword   = "OHYA_DB_PASSWORD"
	EnvDBName       = "OHYA_DB_NAME"

	EnvRedisURL  = "OHYA_REDIS_URL"
	EnvRedisAddr = "OHYA_REDIS_ADDR"

	EnvJWTSecret              = "OHYA_JWT_SECRET"
	EnvJWTIssuer              = "OHYA_JWT_ISSUER"
	EnvJWTExpMins             = "OHYA_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "OHYA_REFRESH_TOKEN_TTL_MINUTES"

	EnvUploadsBackend   = "OHYA_UPLOADS_BACKEND"
	EnvUploadsDir       = "OHYA_UPLOADS_DIR"
	EnvUploadsGCSBucket = "OHYA_UPLOADS_GCS_BUCKET"
	EnvUploadsMaxProof  = "OHYA_UPLOADS_MAX_PROOF_MB"

	EnvOrderNumberPrefix   = "OHYA_ORDER_NUMBER_PREFIX"
	EnvOrderTotalTolerance = "OHYA_ORDER_TOTAL_TOLERANCE"

	EnvAutoMigrate = "OHYA_AUTO_MIGRATE"
	EnvAutoSeed    = "OHYA_AUTO_SEED"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
