/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
	"github.com/hyperledger-labs/mirsim/pkg/config"
	"github.com/hyperledger-labs/mirsim/pkg/logging"
)

var _ = Describe("Loading", func() {
	var (
		dir     string
		environ map[string]string
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "mirsim-config")
		Expect(err).NotTo(HaveOccurred())
		environ = map[string]string{}
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	writeFile := func(content string) string {
		path := filepath.Join(dir, "sim.yaml")
		Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())
		return path
	}

	It("starts from the defaults", func() {
		c, err := config.Load("test", nil, nil, environ)
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(config.Default()))
		Expect(c.ModelParams()).To(Equal(clock.DefaultModelParams))
		Expect(c.Level()).To(Equal(logging.LevelInfo))
	})

	It("starts from the given defaults", func() {
		defaults := config.Default()
		defaults.MaxSteps = 256
		c, err := config.Load("test", defaults, []string{"--seed", "3"}, environ)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.MaxSteps).To(Equal(uint64(256)))
		Expect(defaults.Seed).To(Equal(int64(1)))
	})

	It("reads the environment", func() {
		environ["MIRSIM_SEED"] = "17"
		environ["MIRSIM_DET"] = "true"
		environ["MIRSIM_TIME_MAX_FLIGHT"] = "80"

		c, err := config.Load("test", nil, nil, environ)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Seed).To(Equal(int64(17)))
		Expect(c.Det).To(BeTrue())
		Expect(c.TimeModel.MaxFlightTime).To(Equal(int64(80)))
		Expect(c.Sims).To(Equal(1))
	})

	It("lets the file override the environment and flags override the file", func() {
		environ["MIRSIM_SEED"] = "17"
		environ["MIRSIM_SIMS"] = "3"
		path := writeFile("seed: 23\nlogLevel: debug\ntimeModel:\n  maxDriftPermille: 5\n")

		c, err := config.Load("test", nil, []string{"--config", path, "--seed", "99"}, environ)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Seed).To(Equal(int64(99)))
		Expect(c.Sims).To(Equal(3))
		Expect(c.Level()).To(Equal(logging.LevelDebug))
		Expect(c.TimeModel.MaxDriftPermille).To(Equal(int64(5)))
		Expect(c.TimeModel.MaxFlightTime).To(Equal(config.Default().TimeModel.MaxFlightTime))
	})

	It("parses the driver flags", func() {
		c, err := config.Load("test", nil, []string{
			"--seed", "5",
			"--det",
			"--sims", "10",
			"--log-dir", dir,
			"--time-limit", "5000",
			"--max-steps", "0",
			"--log-level", "warn",
		}, environ)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Seed).To(Equal(int64(5)))
		Expect(c.Det).To(BeTrue())
		Expect(c.Sims).To(Equal(10))
		Expect(c.LogDir).To(Equal(dir))
		Expect(c.TimeLimit).To(Equal(int64(5000)))
		Expect(c.MaxSteps).To(BeZero())
		Expect(c.Level()).To(Equal(logging.LevelWarn))
	})

	It("rejects unknown file keys", func() {
		path := writeFile("seeed: 4\n")
		_, err := config.Load("test", nil, []string{"--config", path}, environ)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("could not unmarshal config file"))
	})

	It("rejects unknown flags", func() {
		_, err := config.Load("test", nil, []string{"--speed", "4"}, environ)
		Expect(err).To(HaveOccurred())
	})

	It("rejects malformed environment values", func() {
		environ["MIRSIM_SEED"] = "many"
		_, err := config.Load("test", nil, nil, environ)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("could not parse environment"))
	})

	It("validates", func() {
		c := config.Default()
		Expect(c.Validate()).To(Succeed())

		c.Sims = 0
		Expect(c.Validate()).NotTo(Succeed())

		c = config.Default()
		c.TimeModel.MinFlightTime = 100
		Expect(c.Validate()).NotTo(Succeed())

		c = config.Default()
		c.MaxSteps = 0
		Expect(c.Validate()).NotTo(Succeed())
		c.TimeLimit = 100
		Expect(c.Validate()).To(Succeed())

		c.LogLevel = "loud"
		Expect(c.Validate()).NotTo(Succeed())
	})
})
