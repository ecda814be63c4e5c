//go:build !unix

package harness

type signalType = int

const (
	sigTerm signalType = 15
	sigKill signalType = 9
)

// signalGroup is a no-op without process groups; stop falls back to
// Process.Kill.
func signalGroup(int, signalType) {}

func signalProcess(int, signalType) {}

func processAlive(int) bool { return false }

func groupAlive(int) bool { return false }

func processGroup(int) int { return -1 }

func hasEnv(int, string) bool { return false }
