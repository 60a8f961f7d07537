package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSOrigins               []string
		RateLimit                 float64 // requests per second per client on sensitive endpoints
		RateBurst                 int
	}

	DatabaseConfig struct {
		Engine        string // postgres | mysql | inmem
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		URL string
	}

	PaymentsConfig struct {
		Currency              string
		StripeSecretKey       string
		StripeCountries       []string
		RazorpayKeyID         string
		RazorpayKeySecret     string
		RazorpayWebhookSecret string
		UPIID                 string
		UPIPayeeName          string
		UPIQRCodeURL          string
		BankAccountName       string
		BankAccountNumber     string
		BankIFSC              string
		BankName              string
		SupportPhone          string
		ReconcileInterval     time.Duration
		ManualReviewAge       time.Duration
	}

	StorageConfig struct {
		Bucket       string
		Region       string
		Endpoint     string
		AccessKey    string
		SecretKey    string
		MaxFileSize  int64
		MaxVideoSize int64
	}

	IdentityConfig struct {
		Provider            string // jwt | firebase
		FirebaseCredentials string
		FirebaseProjectID   string
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		AdminEmails      []mail.Address
		WorkDir          string
		RollbarToken     string
		SendgridAPIKey   string
		Server           ServerConfig
		Database         DatabaseConfig
		Redis            RedisConfig
		Payments         PaymentsConfig
		Storage          StorageConfig
		Identity         IdentityConfig
	}
)

// Address returns the "host:port" of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) InMemory() bool {
	return c.Engine == "inmem"
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` and the environment.
// Environment variables are prefixed with the upper-cased env: eg. DEV_SERVER_ADDRESS.
func NewConfig() *Config {
	conf := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	wd := Getwd()

	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", env == "DEV")
	conf.SetDefault("testMode", env == "TEST")
	conf.SetDefault("appName", "DiplomaHub")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "7yq$kd3!v0x@p2w_diploma-hub-dev-secret")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("adminEmails", "")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridAPIKey", "")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("server.corsOrigins", "*")
	conf.SetDefault("server.rateLimit", 5.0)
	conf.SetDefault("server.rateBurst", 10)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "diplomahub")
	conf.SetDefault("database.user", "diplomahub")
	conf.SetDefault("database.password", "diplomahub")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("redis.url", "")

	conf.SetDefault("payments.currency", "inr")
	conf.SetDefault("payments.stripeSecretKey", "")
	conf.SetDefault("payments.stripeCountries", "IN")
	conf.SetDefault("payments.razorpayKeyID", "")
	conf.SetDefault("payments.razorpayKeySecret", "")
	conf.SetDefault("payments.razorpayWebhookSecret", "")
	conf.SetDefault("payments.upiID", "")
	conf.SetDefault("payments.upiPayeeName", "DiplomaHub")
	conf.SetDefault("payments.upiQRCodeURL", "")
	conf.SetDefault("payments.bankAccountName", "")
	conf.SetDefault("payments.bankAccountNumber", "")
	conf.SetDefault("payments.bankIFSC", "")
	conf.SetDefault("payments.bankName", "")
	conf.SetDefault("payments.supportPhone", "")
	conf.SetDefault("payments.reconcileInterval", 10*time.Minute)
	conf.SetDefault("payments.manualReviewAge", 24*time.Hour)

	conf.SetDefault("storage.bucket", "")
	conf.SetDefault("storage.region", "ap-south-1")
	conf.SetDefault("storage.endpoint", "")
	conf.SetDefault("storage.accessKey", "")
	conf.SetDefault("storage.secretKey", "")
	conf.SetDefault("storage.maxFileSize", int64(50<<20))
	conf.SetDefault("storage.maxVideoSize", int64(100<<20))

	conf.SetDefault("identity.provider", "jwt")
	conf.SetDefault("identity.firebaseCredentials", "")
	conf.SetDefault("identity.firebaseProjectID", "")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		SecretKey:        conf.GetString("secretKey"),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		AdminEmails:      parseAddresses(conf.GetString("adminEmails")),
		WorkDir:          wd,
		RollbarToken:     conf.GetString("rollbarToken"),
		SendgridAPIKey:   conf.GetString("sendgridAPIKey"),
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Address:                   conf.GetString("server.address"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			CORSOrigins:               splitList(conf.GetString("server.corsOrigins")),
			RateLimit:                 conf.GetFloat64("server.rateLimit"),
			RateBurst:                 conf.GetInt("server.rateBurst"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{URL: conf.GetString("redis.url")},
		Payments: PaymentsConfig{
			Currency:              conf.GetString("payments.currency"),
			StripeSecretKey:       conf.GetString("payments.stripeSecretKey"),
			StripeCountries:       splitList(conf.GetString("payments.stripeCountries")),
			RazorpayKeyID:         conf.GetString("payments.razorpayKeyID"),
			RazorpayKeySecret:     conf.GetString("payments.razorpayKeySecret"),
			RazorpayWebhookSecret: conf.GetString("payments.razorpayWebhookSecret"),
			UPIID:                 conf.GetString("payments.upiID"),
			UPIPayeeName:          conf.GetString("payments.upiPayeeName"),
			UPIQRCodeURL:          conf.GetString("payments.upiQRCodeURL"),
			BankAccountName:       conf.GetString("payments.bankAccountName"),
			BankAccountNumber:     conf.GetString("payments.bankAccountNumber"),
			BankIFSC:              conf.GetString("payments.bankIFSC"),
			BankName:              conf.GetString("payments.bankName"),
			SupportPhone:          conf.GetString("payments.supportPhone"),
			ReconcileInterval:     conf.GetDuration("payments.reconcileInterval"),
			ManualReviewAge:       conf.GetDuration("payments.manualReviewAge"),
		},
		Storage: StorageConfig{
			Bucket:       conf.GetString("storage.bucket"),
			Region:       conf.GetString("storage.region"),
			Endpoint:     conf.GetString("storage.endpoint"),
			AccessKey:    conf.GetString("storage.accessKey"),
			SecretKey:    conf.GetString("storage.secretKey"),
			MaxFileSize:  conf.GetInt64("storage.maxFileSize"),
			MaxVideoSize: conf.GetInt64("storage.maxVideoSize"),
		},
		Identity: IdentityConfig{
			Provider:            conf.GetString("identity.provider"),
			FirebaseCredentials: conf.GetString("identity.firebaseCredentials"),
			FirebaseProjectID:   conf.GetString("identity.firebaseProjectID"),
		},
	}
}

func splitList(s string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseAddresses(s string) []mail.Address {
	addrs := make([]mail.Address, 0)
	for _, item := range splitList(s) {
		if addr, err := mail.ParseAddress(item); err == nil {
			addrs = append(addrs, *addr)
		}
	}
	return addrs
}
