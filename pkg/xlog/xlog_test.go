package xlog_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nvaistore-labs/rpcflow/pkg/xlog"
)

var _ = Describe("xlog", func() {
	It("logs at each severity and flushes without panicking", func() {
		xlog.SetTitle("test-proc")
		Expect(func() {
			xlog.Infof("starting up on %s", "127.0.0.1:0")
			xlog.Warningf("retrying %d of %d", 1, 3)
			xlog.Errorf("call failed: %v", "boom")
			xlog.Flush()
		}).NotTo(Panic())
	})
})
