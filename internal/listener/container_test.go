package listener_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang-mq-duplex/internal/adapters/queue/memory"
	"golang-mq-duplex/internal/dispatch"
	"golang-mq-duplex/internal/domain"
	"golang-mq-duplex/internal/keys"
	"golang-mq-duplex/internal/listener"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// tagRecorder is a handler body that records every call it receives.
type tagRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *tagRecorder) handle(_ context.Context, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, tags)
	return nil
}

func (r *tagRecorder) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

var _ = Describe("Container", func() {
	var (
		log       *slog.Logger
		broker    *memory.Broker
		resolver  *keys.Resolver
		ic        *dispatch.Interceptor
		container *listener.Container
		recorder  *tagRecorder
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		broker = memory.NewBroker(16, log)
		resolver = keys.New(keys.MapSource{"queue.name": "orders"}, nil)
		ic = dispatch.New(broker, resolver, dispatch.WithLogger(log))
		container = listener.NewContainer(broker, resolver, log)
		recorder = &tagRecorder{}
	})

	AfterEach(func() {
		broker.Close()
	})

	startContainer := func() context.CancelFunc {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer GinkgoRecover()
			Expect(container.Start(ctx)).To(Succeed())
		}()
		return cancel
	}

	Context("when an in-process caller invokes a bound handler", func() {
		It("publishes instead of running the body, and the consumer runs it exactly once", func() {
			checkSome, err := listener.Bind(container, ic, dispatch.Spec{
				Name:   "check-some",
				Queues: []string{"${queue.name}"},
			}, recorder.handle)
			Expect(err).NotTo(HaveOccurred())

			Expect(checkSome(context.Background(), []string{"bar", "foo"})).To(Succeed())
			Expect(recorder.Calls()).To(BeEmpty())
			Expect(broker.Depth("orders")).To(Equal(1))

			cancel := startContainer()
			defer cancel()

			Eventually(recorder.Calls, 2*time.Second).Should(Equal([][]string{{"bar", "foo"}}))
			Consistently(recorder.Calls, 200*time.Millisecond).Should(HaveLen(1))
			Expect(broker.Depth("orders")).To(Equal(0))
		})
	})

	Context("when called from a delivery context", func() {
		It("runs the body inline without publishing", func() {
			checkSome, err := listener.Bind(container, ic, dispatch.Spec{
				Name:   "check-some",
				Queues: []string{"mytestqueue"},
			}, recorder.handle)
			Expect(err).NotTo(HaveOccurred())

			ctx := domain.WithCaller(context.Background(), "amqp-consumer-1")
			Expect(checkSome(ctx, []string{"inline"})).To(Succeed())

			Expect(recorder.Calls()).To(Equal([][]string{{"inline"}}))
			Expect(broker.Depth("mytestqueue")).To(Equal(0))
		})
	})

	Describe("Invoke", func() {
		BeforeEach(func() {
			_, err := listener.Bind(container, ic, dispatch.Spec{
				Name:   "check-some",
				Queues: []string{"mytestqueue"},
			}, recorder.handle)
			Expect(err).NotTo(HaveOccurred())
		})

		It("redirects a JSON body to the handler's queue", func() {
			Expect(container.Invoke(context.Background(), "check-some", []byte(`["a","b"]`))).To(Succeed())
			Expect(recorder.Calls()).To(BeEmpty())
			Expect(broker.Depth("mytestqueue")).To(Equal(1))
		})

		It("rejects unknown handlers", func() {
			err := container.Invoke(context.Background(), "nope", []byte(`[]`))
			Expect(err).To(MatchError(domain.ErrUnknownHandler))
		})

		It("rejects undecodable bodies", func() {
			err := container.Invoke(context.Background(), "check-some", []byte(`{"not":"a list"}`))
			Expect(err).To(MatchError(domain.ErrInvalidPayload))
			Expect(broker.Depth("mytestqueue")).To(Equal(0))
		})
	})

	Describe("Register", func() {
		It("rejects duplicate names", func() {
			spec := dispatch.Spec{Name: "check-some", Queues: []string{"q"}}
			_, err := listener.Bind(container, ic, spec, recorder.handle)
			Expect(err).NotTo(HaveOccurred())

			_, err = listener.Bind(container, ic, spec, recorder.handle)
			Expect(err).To(MatchError(domain.ErrDuplicateHandler))
		})
	})

	Describe("Describe and Queues", func() {
		It("reports raw and resolved queue names", func() {
			_, err := listener.Bind(container, ic, dispatch.Spec{
				Name:   "check-some",
				Queues: []string{"${queue.name}", "mytestqueue"},
			}, recorder.handle)
			Expect(err).NotTo(HaveOccurred())

			Expect(container.Describe()).To(Equal([]listener.Description{{
				Name:     "check-some",
				Queues:   []string{"${queue.name}", "mytestqueue"},
				Resolved: []string{"orders", "mytestqueue"},
			}}))

			queues, err := container.Queues()
			Expect(err).NotTo(HaveOccurred())
			Expect(queues).To(Equal([]string{"orders", "mytestqueue"}))
		})

		It("reports resolution errors", func() {
			_, err := listener.Bind(container, ic, dispatch.Spec{
				Name:   "broken",
				Queues: []string{"${missing}"},
			}, recorder.handle)
			Expect(err).NotTo(HaveOccurred())

			desc := container.Describe()
			Expect(desc).To(HaveLen(1))
			Expect(desc[0].Error).To(ContainSubstring("missing"))

			_, err = container.Queues()
			Expect(err).To(MatchError(domain.ErrUnresolvedKey))
		})
	})

	Describe("Start", func() {
		It("fails when a queue cannot be resolved", func() {
			_, err := listener.Bind(container, ic, dispatch.Spec{
				Name:   "broken",
				Queues: []string{"${missing}"},
			}, recorder.handle)
			Expect(err).NotTo(HaveOccurred())

			Expect(container.Start(context.Background())).To(MatchError(domain.ErrUnresolvedKey))
		})

		It("returns nil once the context is cancelled", func() {
			_, err := listener.Bind(container, ic, dispatch.Spec{
				Name:   "check-some",
				Queues: []string{"mytestqueue"},
			}, recorder.handle)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- container.Start(ctx) }()
			cancel()

			Eventually(done, 2*time.Second).Should(Receive(BeNil()))
		})
	})
})
