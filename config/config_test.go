package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/balancebeam/config"
)

var _ = Describe("Config", func() {
	var tempDir string

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		wd, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tempDir)).To(Succeed())
		DeferCleanup(os.Chdir, wd)
	})

	writeConfig := func(content string) string {
		path := filepath.Join(tempDir, "balancebeam.yaml")
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	Describe("Load", func() {
		Context("with flags only", func() {
			It("should apply the defaults", func() {
				cfg, err := config.Load([]string{"--upstream", "127.0.0.1:8081"})
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.Address).To(Equal("0.0.0.0:1100"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
				Expect(cfg.Upstreams).To(Equal([]string{"127.0.0.1:8081"}))
				Expect(cfg.HealthCheckInterval()).To(Equal(10 * time.Second))
				Expect(cfg.HealthCheck.Path).To(Equal("/"))
				Expect(cfg.HealthCheckTimeout()).To(Equal(5 * time.Second))
				Expect(cfg.RateLimit.MaxRequestsPerMinute).To(Equal(0))
				Expect(cfg.RateLimitWindow()).To(Equal(time.Minute))
				Expect(cfg.Admin.Address).To(Equal(":9100"))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelInfo))
			})

			It("should accept every option", func() {
				cfg, err := config.Load([]string{
					"--bind", "127.0.0.1:2000",
					"--upstream", "127.0.0.1:8081",
					"--upstream", "127.0.0.1:8082",
					"--active-health-check-interval", "3",
					"--active-health-check-path", "/healthz",
					"--max-requests-per-minute", "20",
					"--log-level", "debug",
					"--admin-address", "",
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.Address).To(Equal("127.0.0.1:2000"))
				Expect(cfg.Upstreams).To(Equal([]string{"127.0.0.1:8081", "127.0.0.1:8082"}))
				Expect(cfg.HealthCheckInterval()).To(Equal(3 * time.Second))
				Expect(cfg.HealthCheck.Path).To(Equal("/healthz"))
				Expect(cfg.RateLimit.MaxRequestsPerMinute).To(Equal(20))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
				Expect(cfg.Admin.Address).To(BeEmpty())
			})

			It("should fail without upstreams", func() {
				_, err := config.Load(nil)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("at least one upstream"))
			})

			It("should fail on an unknown flag", func() {
				_, err := config.Load([]string{"--upstream", "127.0.0.1:8081", "--nope"})
				Expect(err).To(HaveOccurred())
			})

			It("should fail on a non-numeric interval", func() {
				_, err := config.Load([]string{"--upstream", "127.0.0.1:8081", "--active-health-check-interval", "soon"})
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a config file", func() {
			var path string

			BeforeEach(func() {
				path = writeConfig(`
server:
  address: "127.0.0.1:3000"
  environment: "prod"

upstreams:
  - "10.0.0.1:80"
  - "10.0.0.2:80"

health_check:
  interval: "30s"
  path: "/status"
  timeout: "2s"

rate_limit:
  max_requests_per_minute: 100
  window: "30s"

admin:
  address: "127.0.0.1:9200"

logging:
  level: "warn"
`)
			})

			It("should load every section", func() {
				cfg, err := config.Load([]string{"--config", path})
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.Address).To(Equal("127.0.0.1:3000"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvProd))
				Expect(cfg.Upstreams).To(Equal([]string{"10.0.0.1:80", "10.0.0.2:80"}))
				Expect(cfg.HealthCheckInterval()).To(Equal(30 * time.Second))
				Expect(cfg.HealthCheck.Path).To(Equal("/status"))
				Expect(cfg.HealthCheckTimeout()).To(Equal(2 * time.Second))
				Expect(cfg.RateLimit.MaxRequestsPerMinute).To(Equal(100))
				Expect(cfg.RateLimitWindow()).To(Equal(30 * time.Second))
				Expect(cfg.Admin.Address).To(Equal("127.0.0.1:9200"))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelWarn))
			})

			It("should let flags override the file", func() {
				cfg, err := config.Load([]string{
					"--config", path,
					"--upstream", "10.0.0.9:80",
					"--active-health-check-interval", "1",
					"--max-requests-per-minute", "5",
				})
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Upstreams).To(Equal([]string{"10.0.0.9:80"}))
				Expect(cfg.HealthCheckInterval()).To(Equal(time.Second))
				Expect(cfg.RateLimit.MaxRequestsPerMinute).To(Equal(5))
				Expect(cfg.Server.Address).To(Equal("127.0.0.1:3000"))
			})

			It("should let environment variables override the file", func() {
				Expect(os.Setenv("LOGGING_LEVEL", "debug")).To(Succeed())
				DeferCleanup(os.Unsetenv, "LOGGING_LEVEL")

				cfg, err := config.Load([]string{"--config", path})
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
			})

			It("should find config.yaml in the working directory", func() {
				Expect(os.Rename(path, filepath.Join(tempDir, "config.yaml"))).To(Succeed())

				cfg, err := config.Load(nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal("127.0.0.1:3000"))
			})

			It("should fail when the named file does not exist", func() {
				_, err := config.Load([]string{"--config", filepath.Join(tempDir, "missing.yaml")})
				Expect(err).To(HaveOccurred())
			})

			It("should reject an invalid file", func() {
				path = writeConfig(`
upstreams: ["10.0.0.1:80"]
health_check:
  path: "status"
`)
				_, err := config.Load([]string{"--config", path})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("must start with /"))
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			cfg = &config.Config{
				Server:    config.ServerConfig{Address: "0.0.0.0:1100", Environment: config.EnvDev},
				Upstreams: []string{"127.0.0.1:8081"},
				HealthCheck: config.HealthCheckConfig{
					Interval: "10s",
					Path:     "/",
					Timeout:  "5s",
				},
				RateLimit: config.RateLimitConfig{Window: "1m"},
				Admin:     config.AdminConfig{Address: ":9100"},
				Logging:   config.LoggingConfig{Level: config.LogLevelInfo},
			}
		})

		It("should accept a valid configuration", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should accept an empty admin address", func() {
			cfg.Admin.Address = ""
			Expect(cfg.Validate()).To(Succeed())
		})

		DescribeTable("invalid configurations",
			func(mutate func(*config.Config)) {
				mutate(cfg)
				Expect(cfg.Validate()).NotTo(Succeed())
			},
			Entry("unknown environment", func(c *config.Config) { c.Server.Environment = "qa" }),
			Entry("address without port", func(c *config.Config) { c.Server.Address = "0.0.0.0" }),
			Entry("non-numeric port", func(c *config.Config) { c.Server.Address = "0.0.0.0:http" }),
			Entry("no upstreams", func(c *config.Config) { c.Upstreams = nil }),
			Entry("empty upstream", func(c *config.Config) { c.Upstreams = []string{""} }),
			Entry("upstream without port", func(c *config.Config) { c.Upstreams = []string{"127.0.0.1"} }),
			Entry("unparseable interval", func(c *config.Config) { c.HealthCheck.Interval = "often" }),
			Entry("zero interval", func(c *config.Config) { c.HealthCheck.Interval = "0s" }),
			Entry("negative timeout", func(c *config.Config) { c.HealthCheck.Timeout = "-1s" }),
			Entry("relative health path", func(c *config.Config) { c.HealthCheck.Path = "health" }),
			Entry("negative rate limit", func(c *config.Config) { c.RateLimit.MaxRequestsPerMinute = -1 }),
			Entry("bad rate window", func(c *config.Config) { c.RateLimit.Window = "" }),
			Entry("bad admin address", func(c *config.Config) { c.Admin.Address = "admin" }),
			Entry("unknown log level", func(c *config.Config) { c.Logging.Level = "trace" }),
		)
	})
})
