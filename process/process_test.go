package process

import (
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

// Far beyond the kernel's PID_MAX_LIMIT of 4194304.
const unusedPID = 1 << 30

var _ = Describe("process table", func() {

	When("checking liveness", func() {

		It("finds itself", func() {
			Expect(IsAlive(os.Getpid())).To(BeTrue())
		})

		It("doesn't find a pid beyond the kernel limit", func() {
			Expect(IsAlive(unusedPID)).To(BeFalse())
		})

		It("rejects non-positive pids", func() {
			Expect(IsAlive(0)).To(BeFalse())
			Expect(IsAlive(-42)).To(BeFalse())
		})

	})

	It("agrees with snapshots on thread ids", func() {
		tids := make(chan int)
		done := make(chan struct{})
		go func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			tids <- unix.Gettid()
			<-done
		}()
		tid := <-tids
		defer close(done)
		if tid == os.Getpid() {
			Skip("goroutine landed on the main thread")
		}

		snap := Successful(TakeSnapshot())
		Expect(IsAlive(tid)).To(BeFalse())
		Expect(snap.Alive(tid)).To(BeFalse())
		Expect(IsAlive(os.Getpid())).To(Equal(snap.Alive(os.Getpid())))
	})

	When("taking snapshots", func() {

		It("contains itself and its parent", func() {
			snap := Successful(TakeSnapshot())
			Expect(snap.Alive(os.Getpid())).To(BeTrue())
			Expect(snap.Alive(os.Getppid())).To(BeTrue())
			Expect(snap.Alive(unusedPID)).To(BeFalse())
		})

		It("is served by the system table", func() {
			snap := Successful(System{}.Snapshot())
			Expect(snap).To(HaveKey(os.Getpid()))
		})

	})

	It("names executables", func() {
		Expect(Executable(os.Getpid())).NotTo(Equal("-"))
		Expect(Executable(unusedPID)).To(Equal("-"))
	})

})
