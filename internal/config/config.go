package config

import "time"

type Config struct {
	BaseURL  string
	HttpPort int
	Db       struct {
		Dsn         string
		Automigrate bool
	}
	Jwt struct {
		SecretKey string
	}
	Notifications struct {
		Email string
	}
	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Redis struct {
		Addr string
		Db   int
	}
	KafkaServers string
	Processor    struct {
		BaseURL string
		ApiKey  string
	}

	// Withdrawal settings are loaded once at startup and injected into the
	// orchestrator; a zero limit means the limit is not enforced.
	Withdrawal WithdrawalSettings
}

type WithdrawalSettings struct {
	MinimumAmount float64
	MaximumAmount float64
	DailyLimit    float64

	// OtpThreshold is the amount at and above which a withdrawal must be
	// confirmed with a one-time passcode. Zero requires OTP for every request.
	OtpThreshold float64

	OtpResendCooldownSeconds int
	OtpChallengeTTLSeconds   int

	// Location fixes the midnight boundary for the daily limit window. Nil
	// falls back to UTC.
	Location *time.Location
}
