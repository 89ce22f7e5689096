package agent_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loomcomputeco/loom/pkg/agent"
	"github.com/loomcomputeco/loom/pkg/fault"
)

var _ = Describe("Registry", func() {
	var registry *agent.Registry

	BeforeEach(func() {
		registry = agent.NewRegistry()
	})

	It("registers and resolves agents by name", func() {
		_, err := registry.Register(agent.Config{Name: "chat"})
		Expect(err).NotTo(HaveOccurred())

		a, err := registry.Get("chat")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Config.Name).To(Equal("chat"))
	})

	It("rejects duplicate names", func() {
		_, err := registry.Register(agent.Config{Name: "chat"})
		Expect(err).NotTo(HaveOccurred())

		_, err = registry.Register(agent.Config{Name: "chat"})
		Expect(err).To(HaveOccurred())
		Expect(fault.KindOf(err)).To(Equal(fault.KindAgentAlreadyRegistered))
	})

	It("fails resolution of unknown agents with the right kind", func() {
		_, err := registry.Get("ghost")
		Expect(err).To(HaveOccurred())
		Expect(fault.KindOf(err)).To(Equal(fault.KindUnknownAgent))
	})

	It("rejects configs with invalid grammar", func() {
		_, err := registry.Register(agent.Config{Name: "bad", Grammar: "not a grammar"})
		Expect(err).To(HaveOccurred())
	})

	It("lists names sorted", func() {
		for _, name := range []string{"zeta", "alpha", "mid"} {
			_, err := registry.Register(agent.Config{Name: name})
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(registry.Names()).To(Equal([]string{"alpha", "mid", "zeta"}))
	})
})
