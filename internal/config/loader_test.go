package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/killsync/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		_ = os.Setenv("KILLSYNC_DOTENV", filepath.Join(t.TempDir(), "missing.env"))
		defer clearConfigEnvVars()

		convey.Convey("When loading config with only the corporation set", func() {
			_ = os.Setenv("KILLSYNC_CORPORATION_ID", "98730717")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.CorporationID, convey.ShouldEqual, "98730717")
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.KnownStopCount, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config without a corporation", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("KILLSYNC_CORPORATION_ID", "1")
			_ = os.Setenv("KILLSYNC_ADDR", ":8080")
			_ = os.Setenv("KILLSYNC_MAX_PAGES", "10")
			_ = os.Setenv("KILLSYNC_EVENT_DELAY", "250ms")
			_ = os.Setenv("KILLSYNC_FETCH_MAX_ATTEMPTS", "4")
			_ = os.Setenv("KILLSYNC_DB_DRIVER", "pgx")
			_ = os.Setenv("KILLSYNC_DB_DSN", "postgres://u:p@h/db")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MaxPages, convey.ShouldEqual, 10)
				convey.So(cfg.EventDelay, convey.ShouldEqual, 250*time.Millisecond)
				convey.So(cfg.FetchMaxAttempts, convey.ShouldEqual, 4)
				convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverPostgres)
				convey.So(cfg.DataSource(), convey.ShouldEqual, "postgres://u:p@h/db")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
# comment
corporation_id: "42"
addr: ":9090"
cutoff_date: "2024-06-01"
page_delay: 3s
known_stop_count: 7
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("KILLSYNC_CONFIG", tmpFile)
			_ = os.Setenv("KILLSYNC_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CorporationID, convey.ShouldEqual, "42")
				convey.So(cfg.CutoffDate, convey.ShouldEqual, "2024-06-01")
				convey.So(cfg.PageDelay, convey.ShouldEqual, 3*time.Second)
				convey.So(cfg.KnownStopCount, convey.ShouldEqual, 7)
				convey.So(cfg.FetchMaxAttempts, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When a .env file provides values", func() {
			dotenv := filepath.Join(t.TempDir(), "test.env")
			convey.So(os.WriteFile(dotenv, []byte("KILLSYNC_CORPORATION_ID=777\nKILLSYNC_LOG_LEVEL=debug\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("KILLSYNC_DOTENV", dotenv)

			cfg, err := config.Load(ctx)

			convey.Convey("Then they are picked up as environment", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.CorporationID, convey.ShouldEqual, "777")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("KILLSYNC_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("KILLSYNC_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("KILLSYNC_CORPORATION_ID", "1")
			_ = os.Setenv("KILLSYNC_MAX_PAGES", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				if key := kv[:i]; len(key) >= len(config.EnvPrefix) && key[:len(config.EnvPrefix)] == config.EnvPrefix {
					_ = os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "killsync-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
