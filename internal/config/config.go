package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" env-default:":8081"`
	GRPCAddr      string `env:"GRPC_ADDR" env-default:":50052"`
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`
	MetadataStore string `env:"METADATA_STORE" env-default:"postgres"`

	Database  DatabaseConfig  `env-prefix:"DB_"`
	Redis     RedisConfig     `env-prefix:"REDIS_"`
	Dynamo    DynamoConfig    `env-prefix:"DYNAMODB_"`
	Courier   CourierConfig   `env-prefix:"FC_"`
	Sender    SenderConfig    `env-prefix:"SENDER_"`
	Lifecycle LifecycleConfig `env-prefix:"AWB_"`
	RabbitMQ  RabbitMQConfig  `env-prefix:"RABBITMQ_"`
	Kafka     KafkaConfig     `env-prefix:"KAFKA_"`
	Sweep     SweepConfig     `env-prefix:"SWEEP_"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST" env-default:"localhost"`
	Port     int    `env:"PORT" env-default:"5432"`
	User     string `env:"USER" env-default:"postgres"`
	Password string `env:"PASSWORD" env-default:"postgres"`
	DBName   string `env:"NAME" env-default:"awb_db"`
	SSLMode  string `env:"SSLMODE" env-default:"disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST" env-default:"localhost"`
	Port     int    `env:"PORT" env-default:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" env-default:"0"`
}

type DynamoConfig struct {
	Region   string `env:"REGION" env-default:"us-east-1"`
	Endpoint string `env:"ENDPOINT"`
	Table    string `env:"TABLE" env-default:"awb_shipments"`
}

type CourierConfig struct {
	APIURL       string        `env:"API_URL" env-default:"https://api.fancourier.ro"`
	EcommerceURL string        `env:"ECOMMERCE_URL" env-default:"https://ecommerce.fancourier.ro"`
	Domain       string        `env:"DOMAIN"`
	Username     string        `env:"USERNAME"`
	Password     string        `env:"PASSWORD"`
	ClientID     string        `env:"CLIENT_ID"`
	UserAgent    string        `env:"USER_AGENT" env-default:"awb-reconciler/1.0"`
	Timeout      time.Duration `env:"TIMEOUT" env-default:"20s"`
	MaxRetries   int           `env:"MAX_RETRIES" env-default:"2"`
	TZOffset     time.Duration `env:"TZ_OFFSET" env-default:"3h"`
}

type SenderConfig struct {
	Name          string `env:"NAME"`
	Phone         string `env:"PHONE"`
	Address       string `env:"ADDRESS"`
	City          string `env:"CITY"`
	Zip           string `env:"ZIP"`
	IBAN          string `env:"IBAN"`
	Bank          string `env:"BANK" env-default:"Unicredit Bank SA"`
	ReturnPayment string `env:"RETURN_PAYMENT" env-default:"recipient"`
	DocumentType  string `env:"DOCUMENT_TYPE" env-default:"document"`
}

type LifecycleConfig struct {
	AllowedStatuses  []string      `env:"ALLOWED_STATUSES" env-default:"processing,comanda-noua,completed,plata-confirmata,emite-factura-avans"`
	TerminalStatuses []string      `env:"TERMINAL_STATUSES" env-default:"completed"`
	Parcels          int           `env:"PARCELS" env-default:"1"`
	LockTTL          time.Duration `env:"LOCK_TTL" env-default:"300s"`
	ManifestTTL      time.Duration `env:"MANIFEST_TTL" env-default:"5m"`
	VerificationTTL  time.Duration `env:"VERIFICATION_TTL" env-default:"30m"`
	ResetSecret      string        `env:"RESET_SECRET"`
	BulkConcurrency  int           `env:"BULK_CONCURRENCY" env-default:"4"`
}

type RabbitMQConfig struct {
	URL   string `env:"URL"`
	Queue string `env:"QUEUE" env-default:"awb.tasks"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS"`
	Topic   string   `env:"TOPIC" env-default:"awb.lifecycle"`
}

type SweepConfig struct {
	Interval time.Duration `env:"INTERVAL" env-default:"15m"`
	Batch    int           `env:"BATCH" env-default:"50"`
	Workers  int           `env:"WORKERS" env-default:"5"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env variables: %w", err)
	}
	if cfg.MetadataStore != "postgres" && cfg.MetadataStore != "dynamodb" {
		return nil, fmt.Errorf("unknown METADATA_STORE %q", cfg.MetadataStore)
	}
	if cfg.Courier.MaxRetries < 0 {
		cfg.Courier.MaxRetries = 0
	}
	return &cfg, nil
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
