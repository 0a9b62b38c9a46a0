// Package config loads service configuration from defaults, an optional YAML
// file and the environment, and validates it once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Env         string        `yaml:"env"`
	Port        int           `yaml:"port" validate:"min=1,max=65535"`
	DatabaseURL string        `yaml:"databaseUrl"`
	DBMigrate   bool          `yaml:"dbMigrate"`
	RedisURL    string        `yaml:"redisUrl"`
	LogJSON     bool          `yaml:"logJson"`
	LogLevel    string        `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	HTTPTimeout time.Duration `yaml:"httpTimeout" validate:"min=0"`
	ClaimLease  time.Duration `yaml:"claimLease" validate:"min=0"`
	RateRPS     float64       `yaml:"rateRps" validate:"min=0"`
	RateBurst   int           `yaml:"rateBurst" validate:"min=0"`

	Midtrans Midtrans `yaml:"midtrans"`
	Biteship Biteship `yaml:"biteship"`
	Lalamove Lalamove `yaml:"lalamove"`
	Admin    Admin    `yaml:"admin"`
	Alerts   Alerts   `yaml:"alerts"`
}

type Midtrans struct {
	ServerKey    string `yaml:"serverKey" validate:"required"`
	IsProduction bool   `yaml:"isProduction"`
	SnapURL      string `yaml:"snapUrl" validate:"required,url"`
	APIURL       string `yaml:"apiUrl" validate:"required,url"`
	FinishURL    string `yaml:"finishUrl" validate:"omitempty,url"`
}

type Biteship struct {
	APIKey  string  `yaml:"apiKey" validate:"required"`
	BaseURL string  `yaml:"baseUrl" validate:"required,url"`
	Shipper Contact `yaml:"shipper"`
	Origin  Origin  `yaml:"origin"`
	// DefaultWeightGrams applies to items without a weight.
	DefaultWeightGrams int `yaml:"defaultWeightGrams" validate:"min=1"`
}

type Contact struct {
	Name         string `yaml:"name" validate:"required"`
	Phone        string `yaml:"phone" validate:"required"`
	Email        string `yaml:"email" validate:"omitempty,email"`
	Organization string `yaml:"organization"`
}

type Origin struct {
	ContactName  string `yaml:"contactName" validate:"required"`
	ContactPhone string `yaml:"contactPhone" validate:"required"`
	Address      string `yaml:"address" validate:"required"`
	PostalCode   string `yaml:"postalCode" validate:"required,numeric"`
	AreaID       string `yaml:"areaId"`
	Note         string `yaml:"note"`
}

type Lalamove struct {
	APIKey      string `yaml:"apiKey" validate:"required"`
	APISecret   string `yaml:"apiSecret" validate:"required"`
	BaseURL     string `yaml:"baseUrl" validate:"required,url"`
	Market      string `yaml:"market" validate:"required"`
	Language    string `yaml:"language" validate:"required"`
	ServiceType string `yaml:"serviceType" validate:"required"`
	Pickup      Pickup `yaml:"pickup"`
}

type Pickup struct {
	Lat     float64 `yaml:"lat" validate:"required,latitude"`
	Lng     float64 `yaml:"lng" validate:"required,longitude"`
	Address string  `yaml:"address" validate:"required"`
	Name    string  `yaml:"name" validate:"required"`
	Phone   string  `yaml:"phone" validate:"required"`
}

type Admin struct {
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	JWTSecret string `yaml:"jwtSecret"`
}

type Alerts struct {
	WebhookURL string `yaml:"webhookUrl" validate:"omitempty,url"`
	Secret     string `yaml:"secret"`
}

func Default() Config {
	return Config{
		Env:         "dev",
		Port:        8080,
		DBMigrate:   true,
		LogJSON:     true,
		LogLevel:    "info",
		HTTPTimeout: 15 * time.Second,
		ClaimLease:  2 * time.Minute,
		RateRPS:     5,
		RateBurst:   20,
		Midtrans: Midtrans{
			SnapURL: "https://app.sandbox.midtrans.com/snap/v1",
			APIURL:  "https://api.sandbox.midtrans.com",
		},
		Biteship: Biteship{
			BaseURL:            "https://api.biteship.com",
			DefaultWeightGrams: 100,
		},
		Lalamove: Lalamove{
			BaseURL:     "https://rest.sandbox.lalamove.com",
			Market:      "ID",
			Language:    "id_ID",
			ServiceType: "MOTORCYCLE",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables. The result is validated.
func Load() (Config, error) {
	c := Default()
	if p := strings.TrimSpace(os.Getenv("CONFIG_FILE")); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", p, err)
		}
	}
	c = fromEnv(c)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every missing or malformed key in one error.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

func fromEnv(c Config) Config {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		switch os.Getenv(key) {
		case "1", "true", "TRUE":
			*dst = true
		case "0", "false", "FALSE":
			*dst = false
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("APP_ENV", &c.Env)
	integer("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	boolean("DB_MIGRATE", &c.DBMigrate)
	str("REDIS_URL", &c.RedisURL)
	boolean("LOG_JSON", &c.LogJSON)
	str("LOG_LEVEL", &c.LogLevel)
	duration("HTTP_TIMEOUT", &c.HTTPTimeout)
	duration("SHIPMENT_CLAIM_LEASE", &c.ClaimLease)
	float("RATE_RPS", &c.RateRPS)
	integer("RATE_BURST", &c.RateBurst)

	str("MIDTRANS_SERVER_KEY", &c.Midtrans.ServerKey)
	boolean("MIDTRANS_IS_PRODUCTION", &c.Midtrans.IsProduction)
	if c.Midtrans.IsProduction {
		c.Midtrans.SnapURL = "https://app.midtrans.com/snap/v1"
		c.Midtrans.APIURL = "https://api.midtrans.com"
	}
	str("MIDTRANS_SNAP_URL", &c.Midtrans.SnapURL)
	str("MIDTRANS_API_URL", &c.Midtrans.APIURL)
	str("MIDTRANS_FINISH_URL", &c.Midtrans.FinishURL)

	str("BITESHIP_API_KEY", &c.Biteship.APIKey)
	str("BITESHIP_BASE_URL", &c.Biteship.BaseURL)
	str("BITESHIP_SHIPPER_NAME", &c.Biteship.Shipper.Name)
	str("BITESHIP_SHIPPER_PHONE", &c.Biteship.Shipper.Phone)
	str("BITESHIP_SHIPPER_EMAIL", &c.Biteship.Shipper.Email)
	str("BITESHIP_SHIPPER_ORGANIZATION", &c.Biteship.Shipper.Organization)
	str("BITESHIP_ORIGIN_CONTACT_NAME", &c.Biteship.Origin.ContactName)
	str("BITESHIP_ORIGIN_CONTACT_PHONE", &c.Biteship.Origin.ContactPhone)
	str("BITESHIP_ORIGIN_ADDRESS", &c.Biteship.Origin.Address)
	str("BITESHIP_ORIGIN_POSTAL_CODE", &c.Biteship.Origin.PostalCode)
	str("BITESHIP_ORIGIN_AREA_ID", &c.Biteship.Origin.AreaID)
	str("BITESHIP_ORIGIN_NOTE", &c.Biteship.Origin.Note)
	integer("BITESHIP_DEFAULT_WEIGHT_GRAMS", &c.Biteship.DefaultWeightGrams)

	str("LALAMOVE_API_KEY", &c.Lalamove.APIKey)
	str("LALAMOVE_API_SECRET", &c.Lalamove.APISecret)
	str("LALAMOVE_BASE_URL", &c.Lalamove.BaseURL)
	str("LALAMOVE_MARKET", &c.Lalamove.Market)
	str("LALAMOVE_LANGUAGE", &c.Lalamove.Language)
	str("LALAMOVE_SERVICE_TYPE", &c.Lalamove.ServiceType)
	float("LALAMOVE_PICKUP_LAT", &c.Lalamove.Pickup.Lat)
	float("LALAMOVE_PICKUP_LNG", &c.Lalamove.Pickup.Lng)
	str("LALAMOVE_PICKUP_ADDRESS", &c.Lalamove.Pickup.Address)
	str("LALAMOVE_PICKUP_NAME", &c.Lalamove.Pickup.Name)
	str("LALAMOVE_PICKUP_PHONE", &c.Lalamove.Pickup.Phone)

	str("ADMIN_USER", &c.Admin.User)
	str("ADMIN_PASSWORD", &c.Admin.Password)
	str("ADMIN_JWT_SECRET", &c.Admin.JWTSecret)

	str("ALERT_WEBHOOK_URL", &c.Alerts.WebhookURL)
	str("ALERT_WEBHOOK_SECRET", &c.Alerts.Secret)
	return c
}
