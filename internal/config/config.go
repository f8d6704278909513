package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Config carries everything the process reads from the environment.
// Amounts are in kobo, the commission rate is in basis points.
type Config struct {
	Port        string
	DatabaseURL string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	JWTSecret string

	CommissionBPS     int64
	DefaultCourierFee int64
	MinWithdrawal     int64

	PaystackSecretKey string
	ResendAPIKey      string
	FromEmail         string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		CommissionBPS:     getEnvInt64("COMMISSION_BPS", 1000),
		DefaultCourierFee: getEnvInt64("DEFAULT_COURIER_FEE", 1500000),
		MinWithdrawal:     getEnvInt64("MIN_WITHDRAWAL", 100000),

		PaystackSecretKey: os.Getenv("PAYSTACK_SECRET_KEY"),
		ResendAPIKey:      os.Getenv("RESEND_API_KEY"),
		FromEmail:         os.Getenv("FROM_EMAIL"),
	}
}

// DSN resolves the connection string, preferring DATABASE_URL over the
// individual DB_* variables.
func (c *Config) DSN() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}

	if c.DBHost == "" || c.DBUser == "" || c.DBPassword == "" || c.DBName == "" || c.DBPort == "" {
		return "", fmt.Errorf("database configuration not provided: either set DATABASE_URL or all of DB_HOST, DB_USER, DB_PASSWORD, DB_NAME, and DB_PORT")
	}

	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("invalid value for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
