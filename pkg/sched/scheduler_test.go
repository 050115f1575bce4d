package sched

import (
	"context"
	"math/rand"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/mtrqq/memsim/pkg/addrspace"
	"github.com/mtrqq/memsim/pkg/policy"
	"github.com/mtrqq/memsim/pkg/process"
)

func usedBlock(owner process.ID, start, size int) addrspace.Block {
	return addrspace.Block{Start: start, Size: size, Owner: owner}
}

func freeBlock(start, size int) addrspace.Block {
	return addrspace.Block{Start: start, Size: size, Free: true}
}

var _ = Describe("Scheduler", func() {
	var (
		mockCtrl *gomock.Controller
		observer *MockObserver
		ctx      context.Context
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		observer = NewMockObserver(mockCtrl)
		ctx = context.Background()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	newScheduler := func(total int, pol policy.Policy, opts ...Option) *Scheduler {
		s, err := New(total, pol, opts...)
		Expect(err).NotTo(HaveOccurred())
		s.AddObserver(observer)
		return s
	}

	It("should reject a non-positive memory size", func() {
		_, err := New(0, policy.InputOrder{})
		Expect(err).To(MatchError(addrspace.ErrInvalidSize))
	})

	It("should evict the resident process when the request does not fit", func() {
		s := newScheduler(500, policy.InputOrder{})
		set := process.NewSet(process.New("P1", 0, 100), process.New("P2", 0, 450))

		gomock.InOrder(
			observer.EXPECT().OnAdmit(Snapshot{
				Tick:    0,
				Process: "P1",
				Block:   usedBlock("P1", 0, 100),
				Blocks:  []addrspace.Block{usedBlock("P1", 0, 100), freeBlock(100, 400)},
				Total:   500,
				Used:    100,
			}),
			observer.EXPECT().OnEvict(Eviction{
				Tick:     0,
				Victim:   "P1",
				Incoming: "P2",
				Released: freeBlock(0, 100),
			}),
			observer.EXPECT().OnAdmit(Snapshot{
				Tick:    0,
				Process: "P2",
				Block:   usedBlock("P2", 0, 450),
				Blocks:  []addrspace.Block{usedBlock("P2", 0, 450), freeBlock(450, 50)},
				Total:   500,
				Used:    450,
			}),
			observer.EXPECT().OnComplete(gomock.Any()),
		)

		stats, err := s.Run(ctx, set)

		Expect(err).NotTo(HaveOccurred())
		Expect(s.State()).To(Equal(StateDone))
		Expect(stats.Ticks).To(Equal(1))
		Expect(stats.Admissions).To(Equal(2))
		Expect(stats.Evictions).To(Equal(1))
		Expect(stats.PeakUsed).To(Equal(450))
		Expect(stats.Resident).To(Equal([]process.ID{"P2"}))
		Expect(stats.Free).To(Equal(50))
		Expect(stats.LargestFree).To(Equal(50))

		p1, _ := set.Get("P1")
		Expect(p1.Allocated).To(BeTrue())
		Expect(p1.Evictions).To(Equal(1))
	})

	It("should admit processes only once they have arrived", func() {
		s := newScheduler(1000, policy.InputOrder{})
		set := process.NewSet(
			process.New("late", 3, 100),
			process.New("early", 0, 100),
		)

		var admitted []Snapshot
		observer.EXPECT().OnAdmit(gomock.Any()).Do(func(snapshot Snapshot) {
			admitted = append(admitted, snapshot)
		}).Times(2)
		observer.EXPECT().OnComplete(gomock.Any())

		stats, err := s.Run(ctx, set)

		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Ticks).To(Equal(4))
		Expect(admitted).To(HaveLen(2))
		Expect(admitted[0].Process).To(Equal(process.ID("early")))
		Expect(admitted[0].Tick).To(Equal(0))
		Expect(admitted[1].Process).To(Equal(process.ID("late")))
		Expect(admitted[1].Tick).To(Equal(3))
		Expect(admitted[1].Block.Start).To(Equal(100))
	})

	It("should evict in admission order regardless of block addresses", func() {
		s := newScheduler(300, policy.InputOrder{}, WithVerify(true))
		set := process.NewSet(
			process.New("A", 0, 100),
			process.New("B", 0, 200),
			process.New("C", 1, 100),
			process.New("D", 2, 150),
			process.New("E", 3, 250),
		)

		var victims []process.ID
		observer.EXPECT().OnAdmit(gomock.Any()).Times(5)
		observer.EXPECT().OnEvict(gomock.Any()).Do(func(e Eviction) {
			victims = append(victims, e.Victim)
		}).Times(4)
		observer.EXPECT().OnComplete(gomock.Any())

		stats, err := s.Run(ctx, set)

		Expect(err).NotTo(HaveOccurred())
		Expect(victims).To(Equal([]process.ID{"A", "B", "C", "D"}))
		Expect(stats.Resident).To(Equal([]process.ID{"E"}))
		Expect(s.Blocks()).To(Equal([]addrspace.Block{usedBlock("E", 0, 250), freeBlock(250, 50)}))
	})

	It("should try the smallest arrived request first with the size policy", func() {
		s := newScheduler(1000, policy.SizeAscending{})
		set := process.NewSet(
			process.New("A", 0, 300),
			process.New("B", 0, 100),
			process.New("C", 0, 200),
			process.New("D", 0, 100),
		)

		var order []process.ID
		observer.EXPECT().OnAdmit(gomock.Any()).Do(func(snapshot Snapshot) {
			order = append(order, snapshot.Process)
		}).Times(4)
		observer.EXPECT().OnComplete(gomock.Any())

		_, err := s.Run(ctx, set)

		Expect(err).NotTo(HaveOccurred())
		Expect(order).To(Equal([]process.ID{"B", "D", "C", "A"}))
		Expect(s.Blocks()).To(Equal([]addrspace.Block{
			usedBlock("B", 0, 100),
			usedBlock("D", 100, 100),
			usedBlock("C", 200, 200),
			usedBlock("A", 400, 300),
			freeBlock(700, 300),
		}))
	})

	It("should fail when a request exceeds total memory", func() {
		s := newScheduler(100, policy.InputOrder{})
		set := process.NewSet(process.New("small", 0, 50), process.New("huge", 1, 150))

		observer.EXPECT().OnAdmit(gomock.Any())
		observer.EXPECT().OnEvict(gomock.Any())

		stats, err := s.Run(ctx, set)

		Expect(err).To(MatchError(ErrCapacity))
		Expect(err.Error()).To(ContainSubstring("huge"))
		Expect(s.State()).To(Equal(StateFailed))
		Expect(stats.Evictions).To(Equal(1))
		Expect(stats.Used).To(Equal(0))
	})

	It("should report a corrupted residency queue", func() {
		s := newScheduler(100, policy.InputOrder{})
		_, err := s.space.Allocate("stray", 100)
		Expect(err).NotTo(HaveOccurred())
		s.queue.Enqueue("ghost")

		_, err = s.Run(ctx, process.NewSet(process.New("P1", 0, 10)))

		Expect(err).To(MatchError(ErrResidencyCorrupted))
		Expect(err).To(MatchError(addrspace.ErrNotFound))
	})

	It("should catch unqueued owners when verifying", func() {
		s := newScheduler(100, policy.InputOrder{}, WithVerify(true))
		_, err := s.space.Allocate("stray", 50)
		Expect(err).NotTo(HaveOccurred())

		observer.EXPECT().OnAdmit(gomock.Any())

		_, err = s.Run(ctx, process.NewSet(process.New("P1", 0, 10)))

		Expect(err).To(MatchError(ErrResidencyCorrupted))
	})

	It("should never re-admit an evicted process by default", func() {
		s := newScheduler(500, policy.InputOrder{})
		set := process.NewSet(process.New("P1", 0, 100), process.New("P2", 0, 450))

		observer.EXPECT().OnAdmit(gomock.Any()).Times(2)
		observer.EXPECT().OnEvict(gomock.Any()).Times(1)
		observer.EXPECT().OnComplete(gomock.Any())

		_, err := s.Run(ctx, set)

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Resident()).To(Equal([]process.ID{"P2"}))
	})

	It("should re-admit evicted processes when asked to", func() {
		s := newScheduler(500, policy.InputOrder{}, WithReadmit(true), WithMaxTicks(4))
		set := process.NewSet(process.New("P1", 0, 100), process.New("P2", 0, 450))

		observer.EXPECT().OnAdmit(gomock.Any()).AnyTimes()
		observer.EXPECT().OnEvict(gomock.Any()).AnyTimes()

		stats, err := s.Run(ctx, set)

		// the pair can never be resident together, so they keep evicting
		// each other until the tick limit
		Expect(err).To(MatchError(ErrTickLimit))
		Expect(stats.Ticks).To(Equal(4))
		Expect(stats.Evictions).To(Equal(4))

		p1, _ := set.Get("P1")
		Expect(p1.AdmittedAt).To(Equal(3))
		Expect(p1.Allocated).To(BeTrue())

		p2, _ := set.Get("P2")
		Expect(p2.AdmittedAt).To(Equal(2))
		Expect(p2.Allocated).To(BeFalse())
	})

	It("should run exactly the configured number of ticks", func() {
		s := newScheduler(100, policy.InputOrder{}, WithMaxTicks(2))
		set := process.NewSet(process.New("P1", 0, 10), process.New("late", 5, 10))

		observer.EXPECT().OnAdmit(gomock.Any())

		stats, err := s.Run(ctx, set)

		Expect(err).To(MatchError(ErrTickLimit))
		Expect(err.Error()).To(ContainSubstring("1 processes still unallocated after 2 ticks"))
		Expect(stats.Ticks).To(Equal(2))
	})

	It("should catch queued processes without a block when verifying", func() {
		s := newScheduler(100, policy.InputOrder{}, WithVerify(true))
		s.queue.Enqueue("ghost")

		observer.EXPECT().OnAdmit(gomock.Any())

		_, err := s.Run(ctx, process.NewSet(process.New("P1", 0, 10)))

		Expect(err).To(MatchError(ErrResidencyCorrupted))
		Expect(err.Error()).To(ContainSubstring("ghost is queued but holds no block"))
	})

	It("should only run once", func() {
		s := newScheduler(100, policy.InputOrder{})
		observer.EXPECT().OnComplete(gomock.Any())

		_, err := s.Run(ctx, process.NewSet())
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Run(ctx, process.NewSet())
		Expect(err).To(MatchError(ErrAlreadyStarted))
	})

	It("should stop on a cancelled context", func() {
		s := newScheduler(100, policy.InputOrder{})
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.Run(cancelled, process.NewSet(process.New("P1", 0, 10)))

		Expect(err).To(MatchError(context.Canceled))
		Expect(s.State()).To(Equal(StateFailed))
	})

	It("should finish every batch whose requests fit into memory", func() {
		observer.EXPECT().OnAdmit(gomock.Any()).AnyTimes()
		observer.EXPECT().OnEvict(gomock.Any()).AnyTimes()
		observer.EXPECT().OnComplete(gomock.Any()).AnyTimes()

		rng := rand.New(rand.NewSource(7))
		for run := 0; run < 50; run++ {
			const total = 512
			set := process.NewSet()
			n := 1 + rng.Intn(30)
			for i := 0; i < n; i++ {
				set.Add(process.New(process.ID("P"+strconv.Itoa(i)), rng.Intn(10), 1+rng.Intn(total)))
			}

			pol := []policy.Policy{policy.InputOrder{}, policy.StrictInputOrder{}, policy.SizeAscending{}}[run%3]
			s := newScheduler(total, pol, WithVerify(true))

			stats, err := s.Run(ctx, set)

			Expect(err).NotTo(HaveOccurred())
			Expect(set.AllAllocated()).To(BeTrue())
			Expect(stats.Ticks).To(BeNumerically("<=", set.MaxArrival()+1))

			sum := 0
			for _, block := range stats.Blocks {
				sum += block.Size
			}
			Expect(sum).To(Equal(total))
		}
	})
})
