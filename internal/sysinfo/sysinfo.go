// Package sysinfo gathers host, disk, and process facts for the
// introspection commands. Process data comes straight from /proc;
// disk capacity from statfs on the permitted root.
package sysinfo

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// userHZ is the kernel clock tick rate /proc/[pid]/stat times are
// reported in.
const userHZ = 100

// DiskStats reports capacity for the filesystem holding a path.
type DiskStats struct {
	Path  string
	Total uint64
	Free  uint64
	Used  uint64
}

// Disk returns capacity/used/free for the filesystem containing path.
func Disk(path string) (DiskStats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return DiskStats{}, err
	}
	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bavail * bsize
	return DiskStats{
		Path:  path,
		Total: total,
		Free:  free,
		Used:  total - free,
	}, nil
}

// HostInfo is a static host snapshot.
type HostInfo struct {
	Hostname     string
	OS           string
	Arch         string
	CPUs         int
	GoVersion    string
	MemTotal     uint64
	MemFree      uint64
	MemAvailable uint64
	Uptime       time.Duration
	PID          int
}

// Host collects the snapshot reported by the sys command.
func Host() HostInfo {
	hostname, _ := os.Hostname()
	info := HostInfo{
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		GoVersion: runtime.Version(),
		PID:       os.Getpid(),
	}

	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err == nil {
		unit := uint64(si.Unit)
		if unit == 0 {
			unit = 1
		}
		info.MemTotal = si.Totalram * unit
		info.MemFree = si.Freeram * unit
		info.Uptime = time.Duration(si.Uptime) * time.Second
	}
	// Freeram excludes reclaimable caches; meminfo has the real figure.
	if avail, err := ReadMeminfoField("MemAvailable"); err == nil {
		info.MemAvailable = avail
	}
	return info
}

// Process is one running process as the processes command shows it.
type Process struct {
	PID     int
	Name    string
	State   string
	RSS     uint64
	CPUTime time.Duration
}

// Processes enumerates /proc and returns up to limit processes sorted
// by accumulated CPU time, busiest first.
func Processes(limit int) ([]Process, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	procs := make([]Process, 0, len(entries))
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		p, err := readProcess(pid)
		if err != nil {
			// Processes vanish between readdir and stat; skip.
			continue
		}
		procs = append(procs, p)
	}

	sortByCPU(procs)
	if limit > 0 && len(procs) > limit {
		procs = procs[:limit]
	}
	return procs, nil
}

// FindProcess reads one process by pid.
func FindProcess(pid int) (Process, error) {
	return readProcess(pid)
}

// Terminate delivers SIGTERM to pid.
func Terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// readProcess parses /proc/[pid]/stat. The comm field may contain
// spaces and parentheses, so fields are split after the last ')'.
func readProcess(pid int) (Process, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return Process{}, err
	}
	line := string(data)

	open := strings.IndexByte(line, '(')
	end := strings.LastIndexByte(line, ')')
	if open < 0 || end < 0 || end < open {
		return Process{}, fmt.Errorf("malformed stat for pid %d", pid)
	}
	name := line[open+1 : end]

	fields := strings.Fields(line[end+1:])
	// After comm: fields[0]=state, [11]=utime, [12]=stime, [21]=rss.
	if len(fields) < 22 {
		return Process{}, fmt.Errorf("short stat for pid %d", pid)
	}

	utime, _ := strconv.ParseUint(fields[11], 10, 64)
	stime, _ := strconv.ParseUint(fields[12], 10, 64)
	rssPages, _ := strconv.ParseUint(fields[21], 10, 64)

	return Process{
		PID:     pid,
		Name:    name,
		State:   fields[0],
		RSS:     rssPages * uint64(os.Getpagesize()),
		CPUTime: time.Duration((utime + stime) * uint64(time.Second) / userHZ),
	}, nil
}

func sortByCPU(procs []Process) {
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].CPUTime > procs[j].CPUTime
	})
}

// MemLine renders memory for the processes listing.
func (p Process) MemLine(total uint64) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(p.RSS)/float64(total)*100)
}

// ReadMeminfoField returns one numeric field from /proc/meminfo in
// bytes, e.g. "MemAvailable".
func ReadMeminfoField(field string) (uint64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	prefix := field + ":"
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			break
		}
		kb, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("field %s not found in meminfo", field)
}
