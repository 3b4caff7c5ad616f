package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Uploads       UploadsConfig
	Orders        OrdersConfig
	Seed          SeedConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Uploads.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Orders.Tolerance(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OHYA_APP_ENV" required:"true"`
	Port         string `envconfig:"OHYA_APP_PORT" default:"3000"`
	LogLevel     string `envconfig:"OHYA_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"OHYA_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"OHYA_LOG_WARN_STACK" default:"false"`

	CORSOrigins     []string      `envconfig:"OHYA_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `envconfig:"OHYA_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"OHYA_DB_DSN"`
	Driver     string `envconfig:"OHYA_DB_DRIVER" default:"sqlite"`
	SQLitePath string `envconfig:"OHYA_DB_SQLITE_PATH" default:"data/ohya.db"`

	LegacyHost     string `envconfig:"OHYA_DB_HOST"`
	LegacyPort     int    `envconfig:"OHYA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OHYA_DB_USER"`
	LegacyPassword string `envconfig:"OHYA_DB_PASSWORD"`
	LegacyName     string `envconfig:"OHYA_DB_NAME"`
	LegacySSLMode  string `envconfig:"OHYA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OHYA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OHYA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OHYA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OHYA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsPostgres reports whether the configured driver talks to a postgres server.
func (db DBConfig) IsPostgres() bool {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case DBDriverPostgres, DBDriverServerless:
		return true
	default:
		return false
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"OHYA_REDIS_URL"`
	Address      string        `envconfig:"OHYA_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"OHYA_REDIS_PASSWORD"`
	DB           int           `envconfig:"OHYA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OHYA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OHYA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OHYA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OHYA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OHYA_REDIS_WRITE_TIMEOUT" default:"5s"`
	CartTTL      time.Duration `envconfig:"OHYA_CART_TTL" default:"168h"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"OHYA_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"OHYA_JWT_ISSUER" default:"ohya"`
	ExpirationMinutes      int    `envconfig:"OHYA_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"OHYA_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"OHYA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"OHYA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"OHYA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"OHYA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"OHYA_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"OHYA_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"OHYA_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"OHYA_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"OHYA_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"OHYA_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"OHYA_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"OHYA_AUTO_MIGRATE" default:"false"`
	AutoSeed    bool `envconfig:"OHYA_AUTO_SEED" default:"false"`
}

type UploadsConfig struct {
	Backend    string `envconfig:"OHYA_UPLOADS_BACKEND" default:"local"`
	BaseDir    string `envconfig:"OHYA_UPLOADS_DIR" default:"uploads"`
	GCSBucket  string `envconfig:"OHYA_UPLOADS_GCS_BUCKET"`
	MaxProofMB int    `envconfig:"OHYA_UPLOADS_MAX_PROOF_MB" default:"10"`
	MaxImageMB int    `envconfig:"OHYA_UPLOADS_MAX_IMAGE_MB" default:"5"`

	GCSCredentialsJSON string `envconfig:"OHYA_UPLOADS_GCS_CREDENTIALS_JSON"`
	GCSCredentialsFile string `envconfig:"OHYA_UPLOADS_GCS_CREDENTIALS_FILE"`
	GCSEndpoint        string `envconfig:"OHYA_UPLOADS_GCS_ENDPOINT"`
}

func (u UploadsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(u.Backend)) {
	case UploadsBackendLocal, "":
		return nil
	case UploadsBackendGCS:
		if strings.TrimSpace(u.GCSBucket) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvUploadsGCSBucket, EnvUploadsBackend, UploadsBackendGCS)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvUploadsBackend, u.Backend)
	}
}

type OrdersConfig struct {
	NumberPrefix      string `envconfig:"OHYA_ORDER_NUMBER_PREFIX" default:"OH"`
	MaxNumberAttempts int    `envconfig:"OHYA_ORDER_NUMBER_MAX_ATTEMPTS" default:"3"`
	TotalTolerance    string `envconfig:"OHYA_ORDER_TOTAL_TOLERANCE" default:"0.01"`
}

// Tolerance parses the allowed difference between a submitted total and the line sum.
func (o OrdersConfig) Tolerance() (decimal.Decimal, error) {
	value := strings.TrimSpace(o.TotalTolerance)
	if value == "" {
		return decimal.Zero, nil
	}
	tol, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvOrderTotalTolerance, err)
	}
	if tol.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvOrderTotalTolerance)
	}
	return tol, nil
}

type SeedConfig struct {
	AdminEmail    string `envconfig:"OHYA_SEED_ADMIN_EMAIL" default:"admin@ohya2.com"`
	AdminPassword string `envconfig:"OHYA_SEED_ADMIN_PASSWORD" default:"admin123"`
	AdminName     string `envconfig:"OHYA_SEED_ADMIN_NAME" default:"Administrator"`
}

func (db *DBConfig) ensureDSN() error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	switch driver {
	case DBDriverSQLite:
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	case DBDriverPostgres, DBDriverServerless:
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, db.Driver)
	}

	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
