package listener_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/balancebeam/internal/listener"
)

// echoHandler copies everything it reads back to the client.
type echoHandler struct {
	sessions atomic.Int32
}

func (h *echoHandler) HandleConnection(_ context.Context, conn net.Conn) {
	defer conn.Close()
	h.sessions.Add(1)
	io.Copy(conn, conn)
}

var _ = Describe("Server", func() {
	var (
		log     *slog.Logger
		handler *echoHandler
		ctx     context.Context
		cancel  context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		handler = &echoHandler{}
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Listen", func() {
		It("should fail when the address is taken", func() {
			taken, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			defer taken.Close()

			_, err = listener.Listen(taken.Addr().String(), handler, log)
			Expect(err).To(HaveOccurred())
		})

		It("should fail for an invalid address", func() {
			_, err := listener.Listen("not-an-address", handler, log)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Serve", func() {
		var (
			server *listener.Server
			done   chan error
		)

		BeforeEach(func() {
			var err error
			server, err = listener.Listen("127.0.0.1:0", handler, log)
			Expect(err).NotTo(HaveOccurred())

			done = make(chan error, 1)
			srv, result, serveCtx := server, done, ctx
			go func() {
				result <- srv.Serve(serveCtx)
			}()
		})

		echo := func(msg string) string {
			conn, err := net.Dial("tcp", server.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()
			Expect(conn.SetDeadline(time.Now().Add(5 * time.Second))).To(Succeed())

			_, err = io.WriteString(conn, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.(*net.TCPConn).CloseWrite()).To(Succeed())

			reply, err := io.ReadAll(conn)
			Expect(err).NotTo(HaveOccurred())
			return string(reply)
		}

		It("should hand each connection to the handler", func() {
			Expect(echo("first")).To(Equal("first"))
			Expect(echo("second")).To(Equal("second"))
			Eventually(handler.sessions.Load).Should(BeEquivalentTo(2))
		})

		It("should serve connections concurrently", func() {
			held, err := net.Dial("tcp", server.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer held.Close()

			Expect(echo("while another session is open")).To(Equal("while another session is open"))
		})

		It("should stop and release the port when the context is cancelled", func() {
			addr := server.Addr().String()
			cancel()

			Eventually(done).Should(Receive(BeNil()))

			_, err := net.DialTimeout("tcp", addr, time.Second)
			Expect(err).To(HaveOccurred())
		})
	})
})
