package queue

import (
	"context"
	"strconv"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/coldb/coldb/coord"
	"github.com/coldb/coldb/logentry"
)

func TestQueueSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Queue Suite")
}

var _ = Describe("PullLogsToQueue", func() {
	var (
		ctx     context.Context
		cd      *coord.Fake
		replica string
		q       *ReplicatedQueue
	)

	BeforeEach(func() {
		ctx = context.Background()
		cd = coord.NewFake()
		replica = "/replicas/r1"
		q = New("/shard", replica, 0)
	})

	seedLog := func(n int) {
		for i := 0; i < n; i++ {
			e := mkEntry(logentry.GetPart, partName(i), int64(i+1))
			_, err := cd.Create(ctx, coord.LogEntryPathPrefix("/shard"), logentry.Serialize(e), coord.PersistentSequential)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	Context("with a single batch", func() {
		It("pulls every log entry into the queue", func() {
			seedLog(5)
			Expect(q.PullLogsToQueue(ctx, cd)).To(Succeed())
			Expect(q.GetStatus().QueueSize).To(Equal(5))
		})
	})

	Context("with more entries than one multi-op can hold", func() {
		It("pulls all of them into the queue", func() {
			seedLog(150)
			Expect(q.PullLogsToQueue(ctx, cd)).To(Succeed())
			Expect(q.GetStatus().QueueSize).To(Equal(150))
		})
	})

	Context("at the exact batch boundary", func() {
		It("pulls exactly MaxMultiOps entries into the queue", func() {
			seedLog(MaxMultiOps)
			Expect(q.PullLogsToQueue(ctx, cd)).To(Succeed())
			Expect(q.GetStatus().QueueSize).To(Equal(MaxMultiOps))
		})

		It("pulls one more than MaxMultiOps entries into the queue", func() {
			seedLog(MaxMultiOps + 1)
			Expect(q.PullLogsToQueue(ctx, cd)).To(Succeed())
			Expect(q.GetStatus().QueueSize).To(Equal(MaxMultiOps + 1))
		})
	})

	Context("called twice", func() {
		It("is idempotent: the second call pulls nothing new", func() {
			seedLog(3)
			Expect(q.PullLogsToQueue(ctx, cd)).To(Succeed())
			Expect(q.PullLogsToQueue(ctx, cd)).To(Succeed())
			Expect(q.GetStatus().QueueSize).To(Equal(3))
		})
	})
})

func partName(i int) string {
	s := strconv.Itoa(i)
	return "p_" + s + "_" + s + "_0"
}
