//go:build unix

package harness

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

type signalType = unix.Signal

const (
	sigTerm = unix.SIGTERM
	sigKill = unix.SIGKILL
)

// signalGroup signals every process in the group led by pid. The group
// outlives its leader, so this reaches games a launcher left behind.
func signalGroup(pid int, sig signalType) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, sig)
}

// signalProcess signals a single process.
func signalProcess(pid int, sig signalType) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(pid, sig)
}

// processAlive reports whether pid exists and is not a zombie.
func processAlive(pid int) bool {
	if pid <= 0 || unix.Kill(pid, 0) != nil {
		return false
	}
	st, ok := readStat(pid)
	return !ok || st.state != "Z"
}

// groupAlive reports whether any live process remains in group pgid.
func groupAlive(pgid int) bool {
	if pgid <= 0 || unix.Kill(-pgid, 0) != nil {
		return false
	}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		// No procfs; zombies count as alive.
		return true
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		st, ok := readStat(pid)
		if ok && st.pgrp == pgid && st.state != "Z" {
			return true
		}
	}
	return false
}

// processGroup returns the process group of pid, or -1.
func processGroup(pid int) int {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return -1
	}
	return pgid
}

// hasEnv reports whether pid was started with the given KEY=value entry.
func hasEnv(pid int, entry string) bool {
	raw, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/environ")
	if err != nil {
		return false
	}
	for _, kv := range bytes.Split(raw, []byte{0}) {
		if string(kv) == entry {
			return true
		}
	}
	return false
}

type procStat struct {
	state string
	pgrp  int
}

// readStat parses state and pgrp from /proc/<pid>/stat. The command name may
// hold spaces and parentheses, so fields are read after the last ')'.
func readStat(pid int) (procStat, bool) {
	raw, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return procStat{}, false
	}
	st, err := parseStat(string(raw))
	return st, err == nil
}

func parseStat(raw string) (procStat, error) {
	i := strings.LastIndexByte(raw, ')')
	if i < 0 {
		return procStat{}, errors.New("malformed stat")
	}
	// state ppid pgrp ...
	fields := strings.Fields(raw[i+1:])
	if len(fields) < 3 {
		return procStat{}, errors.New("short stat")
	}
	pgrp, err := strconv.Atoi(fields[2])
	if err != nil {
		return procStat{}, err
	}
	return procStat{state: fields[0], pgrp: pgrp}, nil
}
