package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		User          string
		Password      string
		Name          string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// CounselingConfig holds the operational windows of the session lifecycle.
	CounselingConfig struct {
		TickSpec          string
		TickTimeout       time.Duration
		StartWindow       time.Duration
		ReminderWindow    time.Duration
		NoShowGrace       time.Duration
		DedupHorizon      time.Duration
		EmailReminderLead time.Duration
		MeetingTimeout    time.Duration
	}

	NotificationConfig struct {
		PushTimeout time.Duration
		MaxPerPage  int
	}

	PresenceConfig struct {
		StaleAfter time.Duration
		SweepSpec  string
	}

	MeetingConfig struct {
		BaseURL string
	}

	UploadsConfig struct {
		Root string
	}

	ReportsConfig struct {
		LogoPath string
		PageSize int
	}

	Config struct {
		Env             string
		Debug           bool
		TestMode        bool
		AppName         string
		Build           string
		WorkDir         string
		SecretKey       string
		FrontendBaseURL string
		Timezone        string
		LogLevel        string
		RollbarToken    string
		SendgridApiKey  string
		defaultFromName string
		defaultFromAddr string

		Server       ServerConfig
		Database     DatabaseConfig
		Counseling   CounselingConfig
		Notification NotificationConfig
		Presence     PresenceConfig
		Meeting      MeetingConfig
		Uploads      UploadsConfig
		Reports      ReportsConfig
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.defaultFromName, Address: c.defaultFromAddr}
}

// Location returns the configured timezone, UTC when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func NewConfig() *Config {
	v := viper.New()
	wd := Getwd()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "PiyuGuide")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "k2c4-pq8)w#n$+31=ya&uoxh7(t!z)#*r9(#mv4^$xelo3pvz")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("logLevel", "info")
	v.SetDefault("defaultFromName", "PiyuGuide")
	v.SetDefault("defaultFromEmail", "noreply@localhost")

	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("serverDisableReqLogs", false)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbUser", "piyuguide")
	v.SetDefault("dbPassword", "piyuguide")
	v.SetDefault("dbName", "piyuguide")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "postgres")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("counselingTickSpec", "@every 1m")
	v.SetDefault("counselingTickTimeout", 30*time.Second)
	v.SetDefault("counselingStartWindow", 5*time.Minute)
	v.SetDefault("counselingReminderWindow", 15*time.Minute)
	v.SetDefault("counselingNoShowGrace", 20*time.Minute)
	v.SetDefault("counselingDedupHorizon", time.Hour)
	v.SetDefault("counselingEmailReminderLead", time.Hour)
	v.SetDefault("counselingMeetingTimeout", 5*time.Second)

	v.SetDefault("notificationPushTimeout", 2*time.Second)
	v.SetDefault("notificationMaxPerPage", 50)

	v.SetDefault("presenceStaleAfter", 15*time.Minute)
	v.SetDefault("presenceSweepSpec", "@every 5m")

	v.SetDefault("meetingBaseURL", "https://meet.piyuguide.local")
	v.SetDefault("uploadsRoot", filepath.Join(wd, "static", "uploads"))
	v.SetDefault("reportsLogoPath", "")
	v.SetDefault("reportsPageSize", 20)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, STAGING, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "STAGING", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		Build:           v.GetString("build"),
		WorkDir:         wd,
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		Timezone:        v.GetString("timezone"),
		LogLevel:        v.GetString("logLevel"),
		RollbarToken:    v.GetString("rollbarToken"),
		SendgridApiKey:  v.GetString("sendgridApiKey"),
		defaultFromName: v.GetString("defaultFromName"),
		defaultFromAddr: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Address:                   v.GetString("serverAddress"),
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			DisableReqLogs:            v.GetBool("serverDisableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			Name:          v.GetString("dbName"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Counseling: CounselingConfig{
			TickSpec:          v.GetString("counselingTickSpec"),
			TickTimeout:       v.GetDuration("counselingTickTimeout"),
			StartWindow:       v.GetDuration("counselingStartWindow"),
			ReminderWindow:    v.GetDuration("counselingReminderWindow"),
			NoShowGrace:       v.GetDuration("counselingNoShowGrace"),
			DedupHorizon:      v.GetDuration("counselingDedupHorizon"),
			EmailReminderLead: v.GetDuration("counselingEmailReminderLead"),
			MeetingTimeout:    v.GetDuration("counselingMeetingTimeout"),
		},
		Notification: NotificationConfig{
			PushTimeout: v.GetDuration("notificationPushTimeout"),
			MaxPerPage:  v.GetInt("notificationMaxPerPage"),
		},
		Presence: PresenceConfig{
			StaleAfter: v.GetDuration("presenceStaleAfter"),
			SweepSpec:  v.GetString("presenceSweepSpec"),
		},
		Meeting: MeetingConfig{
			BaseURL: v.GetString("meetingBaseURL"),
		},
		Uploads: UploadsConfig{
			Root: v.GetString("uploadsRoot"),
		},
		Reports: ReportsConfig{
			LogoPath: v.GetString("reportsLogoPath"),
			PageSize: v.GetInt("reportsPageSize"),
		},
	}
}
