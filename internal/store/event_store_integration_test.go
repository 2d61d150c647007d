package store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
)

func TestEventStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "EventStore Integration Suite")
}

var (
	ctx       context.Context
	pool      *pgxpool.Pool
	postgresC testcontainers.Container
	es        *EventStore
	fakeNow   uint32
)

var _ = BeforeSuite(func() {
	ctx = context.Background()
	var err error

	Eventually(func() error {
		pool, postgresC, err = setupPostgresContainer(ctx)
		return err
	}, 30*time.Second, 1*time.Second).Should(Succeed(), "failed to start postgres container")

	Eventually(func() error {
		return pool.Ping(ctx)
	}, 30*time.Second, 1*time.Second).Should(Succeed(), "database never became reachable")

	Eventually(func() error {
		_, err := pool.Exec(ctx, testSchema)
		return err
	}, 30*time.Second, 1*time.Second).Should(Succeed(), "schema application failed")

	es = NewEventStoreWithPool(pool).WithClock(func() uint32 { return fakeNow })
})

var _ = AfterSuite(func() {
	if postgresC != nil {
		logsReader, err := postgresC.Logs(ctx)
		if err == nil {
			defer logsReader.Close()
			if logBytes, readErr := io.ReadAll(logsReader); readErr == nil && len(logBytes) > 0 {
				GinkgoWriter.Printf("--- PostgreSQL Container Logs ---\n%s\n", string(logBytes))
			}
		}
	}
	if pool != nil {
		pool.Close()
	}
	if postgresC != nil {
		_ = postgresC.Terminate(ctx)
	}
})

var _ = BeforeEach(func() {
	_, err := pool.Exec(ctx, "TRUNCATE event, consumer")
	Expect(err).NotTo(HaveOccurred())
	fakeNow = 1700000000
})

var _ = Describe("Producer", func() {
	It("assigns contiguous versions to a batch", func() {
		events, err := es.Publish(ctx, NewProducer("u1").
			Event("payments.A", "a").
			Event("payments.B", "b").
			Event("payments.C", "c"))
		Expect(err).NotTo(HaveOccurred())

		Expect(events).To(HaveLen(3))
		Expect(events[0].Version).To(Equal(uint16(1)))
		Expect(events[1].Version).To(Equal(uint16(2)))
		Expect(events[2].Version).To(Equal(uint16(3)))
		for _, e := range events {
			Expect(e.Aggregate).To(Equal("u1"))
		}
	})

	It("rejects a conflicting original_version and leaves no partial writes", func() {
		_, err := es.Publish(ctx, NewProducer("u1").Event("payments.A", "a"))
		Expect(err).NotTo(HaveOccurred())

		_, err = es.Publish(ctx, NewProducer("u1").Event("payments.X", "x"))
		Expect(err).To(HaveOccurred())
		Expect(IsConcurrencyError(err)).To(BeTrue())

		page, err := es.Page(ctx, "", "", 0, "", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Edges).To(HaveLen(1))
		Expect(page.Edges[0].Node.Name).To(Equal("payments.A"))
	})
})

var _ = Describe("Cursor Engine pagination", func() {
	It("concatenates forward pages into the same order as an unpaged scan", func() {
		producer := NewProducer("bulk").Topic("bulk-topic")
		for i := 0; i < 25; i++ {
			producer = producer.Event("bulk.Item", i)
			fakeNow++
		}
		_, err := es.Publish(ctx, producer)
		Expect(err).NotTo(HaveOccurred())

		var paged []Event
		after := ""
		for {
			page, err := es.Page(ctx, "bulk-topic", "", 10, after, false)
			Expect(err).NotTo(HaveOccurred())
			for _, edge := range page.Edges {
				paged = append(paged, edge.Node)
			}
			if !page.PageInfo.HasNextPage {
				break
			}
			after = page.PageInfo.EndCursor
		}

		full, err := es.Page(ctx, "bulk-topic", "", 1000, "", false)
		Expect(err).NotTo(HaveOccurred())

		Expect(len(paged)).To(Equal(len(full.Edges)))
		for i := range paged {
			Expect(paged[i].ID).To(Equal(full.Edges[i].Node.ID))
		}
	})

	It("reverses forward(k) via backward(k, end_cursor) to the original edges", func() {
		producer := NewProducer("rev").Topic("rev-topic")
		for i := 0; i < 10; i++ {
			producer = producer.Event("rev.Item", i)
			fakeNow++
		}
		_, err := es.Publish(ctx, producer)
		Expect(err).NotTo(HaveOccurred())

		forward, err := es.Page(ctx, "rev-topic", "", 5, "", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(forward.Edges).To(HaveLen(5))

		backward, err := es.Page(ctx, "rev-topic", "", 5, forward.PageInfo.EndCursor, true)
		Expect(err).NotTo(HaveOccurred())

		Expect(backward.Edges).To(HaveLen(len(forward.Edges)))
		for i := range forward.Edges {
			Expect(backward.Edges[i].Node.ID).To(Equal(forward.Edges[i].Node.ID))
		}
	})
})

var _ = Describe("Subscription Runtime", func() {
	It("delivers only events created after attach for a non-persistent subscriber", func() {
		_, err := es.Publish(ctx, NewProducer("before").Topic("nonp").Event("x.Before", "before"))
		Expect(err).NotTo(HaveOccurred())

		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		sub, err := es.Stream(subCtx, "sub1", "non-persistent://nonp")
		Expect(err).NotTo(HaveOccurred())

		fakeNow++
		_, err = es.Publish(ctx, NewProducer("after").Topic("nonp").Event("x.After", "after"))
		Expect(err).NotTo(HaveOccurred())

		var delivery Delivery
		Eventually(sub.Deliveries(), 5*time.Second, 50*time.Millisecond).Should(Receive(&delivery))
		Expect(delivery.Event.Name).To(Equal("x.After"))
	})

	It("resumes a persistent consumer strictly after its last ack", func() {
		producer := NewProducer("p5").Topic("persist-topic")
		for i := 0; i < 5; i++ {
			producer = producer.Event("p5.Item", i)
			fakeNow++
		}
		_, err := es.Publish(ctx, producer)
		Expect(err).NotTo(HaveOccurred())

		subCtx1, cancel1 := context.WithCancel(ctx)
		sub1, err := es.Stream(subCtx1, "c1", "persistent://persist-topic")
		Expect(err).NotTo(HaveOccurred())

		var last Delivery
		for i := 0; i < 5; i++ {
			Eventually(sub1.Deliveries(), 5*time.Second, 50*time.Millisecond).Should(Receive(&last))
		}
		c, err := DecodeCursor(last.Cursor)
		Expect(err).NotTo(HaveOccurred())
		Expect(es.Ack(ctx, "c1", c)).To(Succeed())
		cancel1()

		fakeNow++
		_, err = es.Publish(ctx, NewProducer("p5").Topic("persist-topic").OriginalVersion(5).Event("p5.Sixth", "sixth"))
		Expect(err).NotTo(HaveOccurred())

		subCtx2, cancel2 := context.WithCancel(ctx)
		defer cancel2()
		sub2, err := es.Stream(subCtx2, "c1", "persistent://persist-topic")
		Expect(err).NotTo(HaveOccurred())

		var next Delivery
		Eventually(sub2.Deliveries(), 5*time.Second, 50*time.Millisecond).Should(Receive(&next))
		Expect(next.Event.Name).To(Equal("p5.Sixth"))
	})

	It("terminates a prior attach when the same consumer id re-attaches", func() {
		_, err := es.Publish(ctx, NewProducer("evict").Topic("evict-topic").Event("e.One", "one"))
		Expect(err).NotTo(HaveOccurred())

		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		first, err := es.Stream(subCtx, "c1", "persistent://evict-topic")
		Expect(err).NotTo(HaveOccurred())

		var d Delivery
		Eventually(first.Deliveries(), 5*time.Second, 50*time.Millisecond).Should(Receive(&d))

		_, err = es.Stream(subCtx, "c1", "persistent://evict-topic")
		Expect(err).NotTo(HaveOccurred())

		Eventually(first.Deliveries(), 5*time.Second, 50*time.Millisecond).Should(BeClosed())
	})
})
