package healthcheck_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nvaistore-labs/rpcflow/pkg/registry"
	"github.com/nvaistore-labs/rpcflow/pkg/rpcctx"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
	"github.com/nvaistore-labs/rpcflow/proto/echo"
	"github.com/nvaistore-labs/rpcflow/services/healthcheck"
	"github.com/nvaistore-labs/rpcflow/services/ping"
)

func callCheck(reg *registry.Registry, serviceName string) (*slot.Envelope, *rpcctx.UnaryContext) {
	binding, _ := reg.Lookup("health/Check")
	ctx := rpcctx.NewUnaryContext("test-peer", rpcctx.Metadata{}, time.Time{}, false)
	req, _ := echo.Marshal(&echo.HealthCheckRequest{Service: serviceName})
	return binding.UnaryFn(ctx, req), ctx
}

var _ = Describe("healthcheck.Service", func() {
	var reg *registry.Registry

	BeforeEach(func() {
		reg = registry.New()
		Expect(reg.AddService(ping.Service{})).To(Succeed())
		Expect(reg.AddService(healthcheck.Service{Reg: reg})).To(Succeed())
	})

	It("reports overall serving status when no service is named", func() {
		resp, ctx := callCheck(reg, "")
		Expect(ctx.Status().Code).To(Equal(status.OK))
		var out echo.HealthCheckResponse
		Expect(echo.Unmarshal(resp, &out)).To(Succeed())
		Expect(out.Status).To(Equal(echo.Serving))
	})

	It("reports NOT_FOUND for an unknown service", func() {
		resp, ctx := callCheck(reg, "nonexistent")
		Expect(resp).To(BeNil())
		Expect(ctx.Status().Code).To(Equal(status.NotFound))
	})

	It("reports a named service's serving status", func() {
		resp, ctx := callCheck(reg, "ping")
		Expect(ctx.Status().Code).To(Equal(status.OK))
		var out echo.HealthCheckResponse
		Expect(echo.Unmarshal(resp, &out)).To(Succeed())
		Expect(out.Status).To(Equal(echo.Serving))
	})

	It("reflects an unhealthy service", func() {
		entry, ok := reg.GetService("ping")
		Expect(ok).To(BeTrue())
		entry.SetIsServing(func() bool { return false })

		resp, ctx := callCheck(reg, "ping")
		Expect(ctx.Status().Code).To(Equal(status.OK))
		var out echo.HealthCheckResponse
		Expect(echo.Unmarshal(resp, &out)).To(Succeed())
		Expect(out.Status).To(Equal(echo.NotServing))
	})
})
