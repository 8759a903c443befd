package simulation

import (
	"os"
	"testing"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

func TestSimulation(t *testing.T) {
	RegisterFailHandler(g.Fail)
	g.RunSpecs(t, "Simulation Suite")
}

var _ = g.BeforeSuite(func() {
	// DEBUG_TESTS=1 go test ./internal/simulation/... -v shows scheduler logs
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
})
