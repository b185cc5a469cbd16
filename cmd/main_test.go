package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	service "github.com/okian/killsync/internal/app"
	"github.com/okian/killsync/internal/config"
	"github.com/okian/killsync/internal/fakeapi"
	"github.com/okian/killsync/pkg/logger"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testCLI(t *testing.T, upstream string) (*cli, *config.Config, *bytes.Buffer) {
	t.Helper()
	cfg := config.New()
	cfg.CorporationID = "98730717"
	cfg.DBDSN = filepath.Join(t.TempDir(), "killsync.db")
	cfg.ZKBBaseURL = upstream
	cfg.ESIBaseURL = upstream
	out := &bytes.Buffer{}
	c := &cli{
		load: func(context.Context) (*config.Config, error) { return cfg, nil },
		out:  out,
		opts: []service.Option{service.WithSleeper(noSleep)},
		log:  logger.Nop(),
	}
	return c, cfg, out
}

func run(c *cli, args ...string) error {
	cmd := newRootCmd(c)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestCommands(t *testing.T) {
	convey.Convey("Given the CLI against a fake upstream", t, func() {
		ts := httptest.NewServer(fakeapi.NewServer(fakeapi.Generate(fakeapi.DefaultConfig())).Handler())
		defer ts.Close()
		c, _, out := testCLI(t, ts.URL)

		convey.Convey("When the schema is migrated", func() {
			convey.So(run(c, "migrate"), convey.ShouldBeNil)

			convey.Convey("Then stats show an empty store", func() {
				out.Reset()
				convey.So(run(c, "stats"), convey.ShouldBeNil)
				var got struct {
					Totals struct {
						Killmails int `json:"killmails"`
					} `json:"totals"`
					LastSync any `json:"last_sync"`
				}
				convey.So(json.Unmarshal(out.Bytes(), &got), convey.ShouldBeNil)
				convey.So(got.Totals.Killmails, convey.ShouldEqual, 0)
				convey.So(got.LastSync, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a capped sync runs", func() {
			convey.So(run(c, "sync", "--max-pages", "1"), convey.ShouldBeNil)

			convey.Convey("Then the report is printed", func() {
				var rep struct {
					Mode       string `json:"mode"`
					StopReason string `json:"stop_reason"`
					Pages      int    `json:"pages"`
					Stored     int    `json:"stored"`
				}
				convey.So(json.Unmarshal(out.Bytes(), &rep), convey.ShouldBeNil)
				convey.So(rep.Mode, convey.ShouldEqual, "historical")
				convey.So(rep.StopReason, convey.ShouldEqual, "page_cap")
				convey.So(rep.Pages, convey.ShouldEqual, 1)
				convey.So(rep.Stored, convey.ShouldEqual, 50)
			})

			convey.Convey("Then backfills have nothing to repair", func() {
				out.Reset()
				convey.So(run(c, "backfill", "attackers"), convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, `"candidates": 0`)
			})
		})

		convey.Convey("When arguments are invalid", func() {
			convey.So(run(c, "sync", "--max-pages", "-1"), convey.ShouldNotBeNil)
			convey.So(run(c, "backfill", "ships"), convey.ShouldNotBeNil)
			convey.So(run(c, "stats", "extra"), convey.ShouldNotBeNil)
		})

		convey.Convey("When the config cannot be loaded", func() {
			c.load = func(context.Context) (*config.Config, error) { return nil, config.ErrInvalidConfig }
			convey.So(run(c, "stats"), convey.ShouldNotBeNil)
		})
	})
}

func TestServe(t *testing.T) {
	convey.Convey("Given a running server", t, func() {
		ts := httptest.NewServer(fakeapi.NewServer(fakeapi.Generate(fakeapi.DefaultConfig())).Handler())
		defer ts.Close()
		c, cfg, _ := testCLI(t, ts.URL)
		c.cfg = cfg

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.serve(ctx, ln, false) }()
		base := "http://" + ln.Addr().String()

		convey.Convey("When the API is called", func() {
			var health, docs, sync *http.Response
			deadline := time.Now().Add(5 * time.Second)
			for {
				health, err = http.Get(base + "/healthz")
				if err == nil && health.StatusCode == http.StatusOK || time.Now().After(deadline) {
					break
				}
				if err == nil {
					health.Body.Close()
				}
				time.Sleep(10 * time.Millisecond)
			}
			convey.So(err, convey.ShouldBeNil)
			health.Body.Close()
			docs, err = http.Get(base + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			docs.Body.Close()
			sync, err = http.Post(base+"/api/v1/sync", "application/json", bytes.NewBufferString(`{"max_pages":1}`))
			convey.So(err, convey.ShouldBeNil)
			sync.Body.Close()

			convey.Convey("Then it answers and shuts down cleanly", func() {
				convey.So(health.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(docs.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(sync.StatusCode, convey.ShouldEqual, http.StatusAccepted)
				cancel()
				convey.So(<-done, convey.ShouldBeNil)
			})
		})

		convey.Reset(func() {
			cancel()
		})
	})
}
