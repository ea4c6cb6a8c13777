package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/balancebeam/pkg/logger"
)

var _ = Describe("Logger", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	Describe("New", func() {
		It("should write text records outside prod", func() {
			log := logger.New(logger.Options{Level: "info", Environment: "dev", Output: buf})
			log.Info("Connection received", slog.String("client", "127.0.0.1"))

			Expect(buf.String()).To(ContainSubstring(`msg="Connection received"`))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
			Expect(buf.String()).To(ContainSubstring("client=127.0.0.1"))
		})

		It("should write JSON records in prod", func() {
			log := logger.New(logger.Options{Level: "info", Environment: "prod", Output: buf})
			log.Info("Upstream is down", slog.String("upstream", "10.0.0.1:80"))

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record).To(HaveKeyWithValue("msg", "Upstream is down"))
			Expect(record).To(HaveKeyWithValue("environment", "prod"))
			Expect(record).To(HaveKeyWithValue("upstream", "10.0.0.1:80"))
		})

		It("should drop records below the configured level", func() {
			log := logger.New(logger.Options{Level: "warn", Environment: "dev", Output: buf})
			log.Info("quiet")
			log.Warn("loud")

			Expect(buf.String()).NotTo(ContainSubstring("quiet"))
			Expect(buf.String()).To(ContainSubstring("loud"))
		})

		It("should add the source location when asked", func() {
			log := logger.New(logger.Options{Level: "info", AddSource: true, Environment: "dev", Output: buf})
			log.Info("with source")

			Expect(buf.String()).To(ContainSubstring("source="))
		})

		It("should default to info", func() {
			log := logger.New(logger.Options{Environment: "dev", Output: buf})
			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
		})
	})

	DescribeTable("ParseLevel",
		func(name string, expected slog.Level) {
			Expect(logger.ParseLevel(name)).To(Equal(expected))
		},
		Entry("debug", "debug", slog.LevelDebug),
		Entry("info", "info", slog.LevelInfo),
		Entry("warn", "warn", slog.LevelWarn),
		Entry("error", "error", slog.LevelError),
		Entry("mixed case", "DeBuG", slog.LevelDebug),
		Entry("unknown", "verbose", slog.LevelInfo),
		Entry("empty", "", slog.LevelInfo),
	)
})
