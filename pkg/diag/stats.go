package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Stats is one /proc sample for a RUN child. pkg/engine copies its
// CPUPercent and MemoryMB into the status snapshot, which `orderly
// status` shows in its extra column.
type Stats struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   int64   `json:"memory_mb"`
	MemoryRSS  int64   `json:"memory_rss"`
	VirtualMB  int64   `json:"virtual_mb"`
	State      string  `json:"state"`
	Threads    int     `json:"threads"`
	StartTime  int64   `json:"start_time"`
}

type procStat struct {
	utime     uint64
	stime     uint64
	startTime uint64
	state     byte
	threads   int
	vsize     uint64
	rss       int64
}

type cpuSnapshot struct {
	pid       int
	utime     uint64
	stime     uint64
	timestamp time.Time
}

// CPUTracker accumulates consecutive /proc samples per pid so CPUPercent
// can be derived from the delta between two reads instead of a single
// cumulative jiffy count.
type CPUTracker struct {
	snapshots map[int]cpuSnapshot
}

func NewCPUTracker() *CPUTracker {
	return &CPUTracker{snapshots: make(map[int]cpuSnapshot)}
}

// ReadStats reads one process's current statistics. Pass the same
// tracker across calls for a given pid to get a CPUPercent; pass nil for
// a single cumulative snapshot.
func ReadStats(pid int, tracker *CPUTracker) (*Stats, error) {
	if pid <= 0 {
		return nil, errors.New("invalid PID")
	}

	ps, err := readProcStat(pid)
	if err != nil {
		return nil, errors.Wrap(err, "read /proc/stat")
	}

	pageSize := int64(os.Getpagesize())
	memRSS := ps.rss * pageSize
	memMB := memRSS / (1024 * 1024)
	virtualMB := int64(ps.vsize) / (1024 * 1024)

	stats := &Stats{
		PID:       pid,
		MemoryRSS: memRSS,
		MemoryMB:  memMB,
		VirtualMB: virtualMB,
		State:     string(ps.state),
		Threads:   ps.threads,
		StartTime: int64(ps.startTime),
	}

	if tracker != nil {
		now := time.Now()
		totalTime := ps.utime + ps.stime

		if prev, ok := tracker.snapshots[pid]; ok {
			elapsed := now.Sub(prev.timestamp).Seconds()
			if elapsed > 0 {
				prevTotal := prev.utime + prev.stime
				cpuDelta := float64(totalTime - prevTotal)
				cpuSeconds := cpuDelta / 100.0 // assumes 100Hz jiffies, standard on Linux
				stats.CPUPercent = (cpuSeconds / elapsed) * 100.0
			}
		}

		tracker.snapshots[pid] = cpuSnapshot{pid: pid, utime: ps.utime, stime: ps.stime, timestamp: now}
	}

	return stats, nil
}

// ReadAllStats reads statistics for every pid in pids, silently skipping
// any that have already exited.
func ReadAllStats(pids []int, tracker *CPUTracker) map[int]*Stats {
	result := make(map[int]*Stats)
	for _, pid := range pids {
		stats, err := ReadStats(pid, tracker)
		if err != nil {
			continue
		}
		result[pid] = stats
	}
	return result
}

// CleanupStale drops tracked snapshots for pids no longer in activePIDs,
// so the long-running engine (pkg/engine.writeSnapshot) doesn't leak one
// entry per restart cycle.
func (t *CPUTracker) CleanupStale(activePIDs []int) {
	active := make(map[int]bool, len(activePIDs))
	for _, pid := range activePIDs {
		active[pid] = true
	}
	for pid := range t.snapshots {
		if !active[pid] {
			delete(t.snapshots, pid)
		}
	}
}

// NOTE: readProcStat below is the remainder of a larger /proc reader; a
// GetBootTime()-based absolute process-start-time helper that used to
// live here was dropped because the engine already knows each RUN
// child's start time directly from its own clock the moment it spawns
// it (pkg/actor.Actor.Start), making a jiffies-since-boot reconstruction
// of the same fact both less accurate and unreachable once the process
// and its /proc entry are gone — exactly the case WriteExitInfo needs
// started-at for.
func readProcStat(pid int) (*procStat, error) {
	path := filepath.Join("/proc", strconv.Itoa(pid), "stat")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read stat file")
	}

	content := string(data)
	closeParen := strings.LastIndex(content, ")")
	if closeParen < 0 {
		return nil, errors.New("malformed stat file: no closing paren")
	}

	rest := strings.TrimSpace(content[closeParen+1:])
	fields := strings.Fields(rest)
	if len(fields) < 22 {
		return nil, fmt.Errorf("malformed stat file: expected 22+ fields, got %d", len(fields))
	}

	ps := &procStat{state: fields[0][0]}
	var parseErr error

	ps.utime, parseErr = strconv.ParseUint(fields[11], 10, 64)
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "parse utime")
	}
	ps.stime, parseErr = strconv.ParseUint(fields[12], 10, 64)
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "parse stime")
	}
	threads, parseErr := strconv.Atoi(fields[17])
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "parse num_threads")
	}
	ps.threads = threads
	ps.startTime, parseErr = strconv.ParseUint(fields[19], 10, 64)
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "parse starttime")
	}
	ps.vsize, parseErr = strconv.ParseUint(fields[20], 10, 64)
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "parse vsize")
	}
	rss, parseErr := strconv.ParseInt(fields[21], 10, 64)
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "parse rss")
	}
	ps.rss = rss

	return ps, nil
}
