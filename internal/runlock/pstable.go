package runlock

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var procStateReg = regexp.MustCompile(`^\s*(\S+)\s*(\S+)`)

// GetPIDState reads the `stat` flags of pid from the system process table.
// It spawns ps(1) and is only used to tell zombies apart from live holders.
func GetPIDState(pid int) (ProcessState, error) {
	stdout := new(bytes.Buffer)
	cmd := exec.Command("ps", "ax", "-o", "pid,stat")
	cmd.Stdout = stdout
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("failed executing process: %w", err)
	}
	return stateFromPSTable(stdout.String(), pid)
}

func stateFromPSTable(table string, pid int) (ProcessState, error) {
	for _, line := range strings.Split(table, "\n") {
		components := procStateReg.FindStringSubmatch(strings.TrimSpace(line))
		if len(components) != 3 {
			continue
		}
		procID, err := strconv.Atoi(components[1])
		if err != nil || procID != pid {
			continue
		}

		var state ProcessState
		for _, flag := range components[2] {
			state |= stateFlags[flag]
		}
		return state, nil
	}
	return 0, fmt.Errorf("process %d not found on process table", pid)
}

type ProcessState uint32

const (
	StateUninterruptibleSleep ProcessState = 1 << iota
	StateRunning
	StateInterruptibleSleep
	StateStopped
	StateTracingStop
	StateDead
	StateDefunct
	StateWaking
	StateIdle
	StateHighPriority
	StateLowPriority
	StateSessionLeader
	StateMultiThreaded
	StateForeground
)

var stateFlags = map[rune]ProcessState{
	'D': StateUninterruptibleSleep,
	'R': StateRunning,
	'S': StateInterruptibleSleep,
	'T': StateStopped,
	't': StateTracingStop,
	'X': StateDead,
	'x': StateDead,
	'Z': StateDefunct,
	'W': StateWaking,
	'I': StateIdle,
	'<': StateHighPriority,
	'N': StateLowPriority,
	's': StateSessionLeader,
	'l': StateMultiThreaded,
	'+': StateForeground,
}
