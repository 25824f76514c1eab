/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package echo_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mirsim/pkg/driver"
	"github.com/hyperledger-labs/mirsim/pkg/history"
	"github.com/hyperledger-labs/mirsim/pkg/world"
	"github.com/hyperledger-labs/mirsim/samples/echo"
)

var _ = Describe("Echo", func() {
	var out *bytes.Buffer

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	It("echoes for 256 steps", func() {
		report, err := driver.New(echo.Defaults(), echo.Simulation(), out).RunOne(1, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Outcome).To(Equal(driver.Completed))
		Expect(report.Steps).To(Equal(uint64(256)))
		Expect(report.Digest).NotTo(BeZero())
	})

	It("reproduces its digest", func() {
		c := echo.Defaults()
		c.Det = true
		c.Sims = 3
		reports, err := driver.New(c, echo.Simulation(), out).Run()
		Expect(err).NotTo(HaveOccurred())
		for _, r := range reports {
			Expect(r.Outcome).To(Equal(driver.Completed), r.String())
		}
	})

	It("records every call as echoed", func() {
		sim := echo.Simulation()
		var calls []history.Call
		check := sim.Check
		sim.Check = func(w *world.World) error {
			calls = w.History().Calls()
			return check(w)
		}
		_, err := driver.New(echo.Defaults(), sim, out).RunOne(2, "")
		Expect(err).NotTo(HaveOccurred())

		completed := 0
		for _, call := range calls {
			Expect(call.Method).To(Equal(echo.Method))
			if call.Status == history.StatusCompleted {
				completed++
				Expect(string(call.Output)).To(MatchJSON(`{"Text":"Hello"}`))
			}
		}
		Expect(completed).To(BeNumerically(">", 0))
	})

	It("exits cleanly", func() {
		Expect(driver.Main(echo.Simulation(), echo.Defaults(), []string{"--seed", "4"}, out)).To(Equal(0))
		Expect(out.String()).To(ContainSubstring("seed 4: Completed"))
	})
})
