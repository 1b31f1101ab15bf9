package config

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DB struct {
	Url              string        `envconfig:"URL"`
	Driver           string        `envconfig:"DRIVER" default:"postgres"`
	LockTimeout      time.Duration `envconfig:"LOCK_TIMEOUT" default:"2s"`
	StatementTimeout time.Duration `envconfig:"STATEMENT_TIMEOUT" default:"5s"`
	MigrationsPath   string        `envconfig:"MIGRATIONS_PATH" default:"internal/migrations"`
	MaxOpenConns     int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
}

// Redis is optional. An empty URL keeps locks and the rate cache in process.
type Redis struct {
	URL          string        `envconfig:"URL"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:"retailpay:"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	LockTTL      time.Duration `envconfig:"LOCK_TTL" default:"15s"`
	LockRetry    time.Duration `envconfig:"LOCK_RETRY" default:"25ms"`
}

type Kafka struct {
	Brokers      string        `envconfig:"BROKERS"`
	TopicPrefix  string        `envconfig:"TOPIC_PREFIX" default:"retailpay.events"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"5s"`
	SASLUsername string        `envconfig:"SASL_USERNAME"`
	SASLPassword string        `envconfig:"SASL_PASSWORD"`
	TLSEnabled   bool          `envconfig:"TLS_ENABLED" default:"false"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m"`
}

type Gateway struct {
	RedirectBase string `envconfig:"REDIRECT_BASE_URL" default:"http://localhost:3000/gateway/checkout"`
}

// Inventory points at the catalog service. Without a URL an in-memory
// stock stub is used.
type Inventory struct {
	URL        string        `envconfig:"URL"`
	APIKey     string        `envconfig:"API_KEY"`
	Timeout    time.Duration `envconfig:"TIMEOUT" default:"3s"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"2"`
	StubStock  int           `envconfig:"STUB_STOCK" default:"1000"`
}

//revive:disable
type ExchangeRate struct {
	ApiKey      string        `envconfig:"API_KEY"`
	ApiUrl      string        `envconfig:"API_URL" default:"https://v6.exchangerate-api.com/v6"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	MaxRetries  int           `envconfig:"MAX_RETRIES" default:"3"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"15m"`
	CachePrefix string        `envconfig:"CACHE_PREFIX" default:"exr:rate:"`
	// FixedRates is used when no API key is configured, e.g. "EUR/USD=1.08,GBP/USD=1.27".
	FixedRates string `envconfig:"FIXED_RATES" default:"EUR/USD=1.08,GBP/USD=1.27,USD/KES=129.50"`
}

//revive:enable

type Settlement struct {
	AccountID uuid.UUID `envconfig:"ACCOUNT_ID" default:"00000000-0000-0000-0000-000000000001"`
	ClientID  uuid.UUID `envconfig:"CLIENT_ID" default:"00000000-0000-0000-0000-000000000001"`
	Currency  string    `envconfig:"CURRENCY" default:"USD"`
}

type Order struct {
	TaxRate             decimal.Decimal `envconfig:"TAX_RATE" default:"0.16"`
	ShippingFee         decimal.Decimal `envconfig:"SHIPPING_FEE" default:"5.00"`
	CollaboratorTimeout time.Duration   `envconfig:"COLLABORATOR_TIMEOUT" default:"5s"`
	LedgerTimeout       time.Duration   `envconfig:"LEDGER_TIMEOUT" default:"10s"`
}

type Worker struct {
	Enabled     bool          `envconfig:"ENABLED" default:"true"`
	Interval    time.Duration `envconfig:"INTERVAL" default:"30s"`
	BatchSize   int           `envconfig:"BATCH_SIZE" default:"50"`
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"5"`
}

type Telemetry struct {
	Enabled     bool    `envconfig:"ENABLED" default:"false"`
	Endpoint    string  `envconfig:"ENDPOINT" default:"localhost:4318"`
	Insecure    bool    `envconfig:"INSECURE" default:"true"`
	ServiceName string  `envconfig:"SERVICE_NAME" default:"retailpay"`
	SampleRatio float64 `envconfig:"SAMPLE_RATIO" default:"1.0"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[retailpay]"`
}

type Server struct {
	Scheme          string        `envconfig:"SCHEME" default:"http"`
	Host            string        `envconfig:"HOST" default:"localhost"`
	Port            int           `envconfig:"PORT" default:"3000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type App struct {
	Env          string        `envconfig:"APP_ENV" default:"development"`
	Server       *Server       `envconfig:"SERVER"`
	Log          *Log          `envconfig:"LOG"`
	DB           *DB           `envconfig:"DATABASE"`
	Redis        *Redis        `envconfig:"REDIS"`
	Kafka        *Kafka        `envconfig:"KAFKA"`
	RateLimit    *RateLimit    `envconfig:"RATE_LIMIT"`
	Gateway      *Gateway      `envconfig:"GATEWAY"`
	Inventory    *Inventory    `envconfig:"INVENTORY"`
	ExchangeRate *ExchangeRate `envconfig:"EXCHANGE_RATE"`
	Settlement   *Settlement   `envconfig:"SETTLEMENT"`
	Order        *Order        `envconfig:"ORDER"`
	Worker       *Worker       `envconfig:"WORKER"`
	Telemetry    *Telemetry    `envconfig:"TELEMETRY"`
}

// IsDevelopment reports whether internal error details may be exposed.
func (a *App) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "test"
}
