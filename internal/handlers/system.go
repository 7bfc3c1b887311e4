package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"fileferry/internal/command"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
	"fileferry/internal/shared/format"
	"fileferry/internal/sysinfo"
)

// Disk reports capacity for the filesystem holding the permitted root.
func (h *Handlers) Disk(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	stats, err := sysinfo.Disk(h.resolver.Root())
	if err != nil {
		return nil, errs.FromOS("disk", h.resolver.Root(), err)
	}

	lines := []string{
		fmt.Sprintf("disk for %s:", h.resolver.Display(stats.Path)),
		fmt.Sprintf("  total  %s", format.Size(int64(stats.Total))),
		fmt.Sprintf("  used   %s (%s)", format.Size(int64(stats.Used)), format.Percent(stats.Used, stats.Total)),
		fmt.Sprintf("  free   %s", format.Size(int64(stats.Free))),
	}
	return command.NewText(format.Lines(lines...)), nil
}

// Sys reports a host snapshot: identity, CPU count, memory, uptime.
func (h *Handlers) Sys(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	info := sysinfo.Host()

	lines := []string{
		fmt.Sprintf("host    %s", info.Hostname),
		fmt.Sprintf("os      %s/%s", info.OS, info.Arch),
		fmt.Sprintf("cpus    %d", info.CPUs),
		fmt.Sprintf("memory  %s available of %s", format.Size(int64(available(info))), format.Size(int64(info.MemTotal))),
		fmt.Sprintf("uptime  %s", format.Uptime(info.Uptime)),
		fmt.Sprintf("pid     %d (%s)", info.PID, info.GoVersion),
	}
	return command.NewText(format.Lines(lines...)), nil
}

// available falls back to Freeram on hosts without /proc/meminfo.
func available(info sysinfo.HostInfo) uint64 {
	if info.MemAvailable > 0 {
		return info.MemAvailable
	}
	return info.MemFree
}

// Processes lists the busiest processes by accumulated CPU time.
func (h *Handlers) Processes(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	procs, err := sysinfo.Processes(h.limits.ProcessLimit)
	if err != nil {
		return nil, errs.FromOS("processes", "/proc", err)
	}
	if len(procs) == 0 {
		return command.NewText("no processes visible"), nil
	}

	memTotal := sysinfo.Host().MemTotal
	rows := make([]string, 0, len(procs)+1)
	rows = append(rows, fmt.Sprintf("%-8s %-6s %-8s %-10s %s", "PID", "STATE", "MEM", "CPU", "NAME"))
	for _, p := range procs {
		rows = append(rows, fmt.Sprintf("%-8d %-6s %-8s %-10s %s",
			p.PID, p.State, p.MemLine(memTotal), p.CPUTime, p.Name))
	}
	return command.NewText(format.Lines(rows...)), nil
}

// Kill sends SIGTERM to a process. Without --force it only shows what
// would be signalled. The service's own pid and any configured pids are
// never killable.
func (h *Handlers) Kill(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	args, force := splitForce(req.Args)
	if len(args) != 1 {
		return nil, errs.InvalidArgument("kill", "usage: kill <pid> [--force]")
	}

	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		return nil, errs.InvalidArgument("kill", fmt.Sprintf("pid must be a positive number, got %q", args[0]))
	}
	if _, protected := h.protected[pid]; protected || pid == os.Getpid() {
		return nil, errs.Protected("kill", strconv.Itoa(pid))
	}

	proc, err := sysinfo.FindProcess(pid)
	if err != nil {
		return nil, errs.NotFound("kill", strconv.Itoa(pid))
	}

	if !force {
		return command.NewText(fmt.Sprintf(
			"pid %d is %q (%s, state %s)\nre-run with --force to send SIGTERM",
			proc.PID, proc.Name, format.Size(int64(proc.RSS)), proc.State)), nil
	}

	if err := sysinfo.Terminate(pid); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, errs.New(errs.KindPermissionDenied, "kill", strconv.Itoa(pid),
				fmt.Sprintf("not permitted to signal pid %d", pid))
		}
		return nil, errs.FromOS("kill", strconv.Itoa(pid), err)
	}

	h.log.Info("process terminated",
		zap.Int("pid", pid),
		zap.String("name", proc.Name),
		zap.String("operator", req.Operator))
	return command.NewText(fmt.Sprintf("sent SIGTERM to pid %d (%s)", pid, proc.Name)), nil
}
