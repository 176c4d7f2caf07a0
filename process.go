package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	ErrAlreadyRunning = errors.New("suricata is already running")
	ErrNotRunning     = errors.New("suricata is not running")
	ErrNoProcess      = errors.New("no suricata process found")
)

// LaunchError carries whatever suricata printed before it died during the
// startup confirmation window.
type LaunchError struct {
	Output string
	Err    error
}

func (e *LaunchError) Error() string {
	msg := "suricata failed to start"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }

var stalePIDFiles = []string{"/var/run/suricata.pid", "/run/suricata.pid"}

// Controller owns the suricata child process. It also recognizes instances
// started outside the dashboard and manages them by pid.
//
// Tracked pids are paired with the kernel's process creation time so a
// recycled pid is never mistaken for the process we launched.
type Controller struct {
	cfg *Config
	log *slog.Logger

	opMu sync.Mutex // serializes start/stop/restart

	mu         sync.Mutex
	state      ProcessState
	pid        int32
	createTime int64 // milliseconds, process identity
	iface      string
	cmd        *exec.Cmd
	done       chan struct{} // closed by the reaper, nil for adopted processes
	lastExit   error
}

func NewController(cfg *Config, log *slog.Logger) *Controller {
	return &Controller{cfg: cfg, log: log, state: StateStopped}
}

// Start launches suricata and waits a short confirmation window to catch
// immediate config failures.
func (c *Controller) Start() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.start()
}

func (c *Controller) start() error {
	c.mu.Lock()
	if c.pid == 0 {
		c.adoptLocked()
	}
	if c.liveLocked() {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.state = StateStarting
	c.mu.Unlock()

	c.cleanStalePIDFiles()

	iface := c.cfg.Interface
	if iface == "" {
		if names, err := DetectInterfaces(c.cfg.SuricataConfig); err == nil && len(names) > 0 {
			iface = names[0]
		}
	}
	if iface == "" {
		iface = "eth0"
	}

	var output bytes.Buffer
	cmd := exec.Command(c.cfg.SuricataBinary, "-c", c.cfg.SuricataConfig, "-i", iface)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		return &LaunchError{Output: output.String(), Err: err}
	}

	pid := int32(cmd.Process.Pid)
	var createTime int64
	if p, err := process.NewProcess(pid); err == nil {
		if ct, err := p.CreateTime(); err == nil {
			createTime = ct
		}
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.pid = pid
	c.createTime = createTime
	c.iface = iface
	c.cmd = cmd
	c.done = done
	c.mu.Unlock()

	go c.reap(cmd, pid, done)

	select {
	case <-done:
		c.mu.Lock()
		exitErr := c.lastExit
		c.mu.Unlock()
		return &LaunchError{Output: output.String(), Err: exitErr}
	case <-time.After(c.cfg.StartupConfirm):
	}

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	c.log.Info("suricata started", "pid", pid, "interface", iface)
	return nil
}

// reap waits on a spawned child and records how it went away. An exit while
// the controller thinks the process should be up is a crash.
func (c *Controller) reap(cmd *exec.Cmd, pid int32, done chan struct{}) {
	err := cmd.Wait()

	c.mu.Lock()
	c.lastExit = err
	if c.pid == pid {
		switch c.state {
		case StateStopping, StateStarting:
			c.state = StateStopped
		default:
			c.state = StateCrashed
			c.log.Warn("suricata exited unexpectedly", "pid", pid, "err", err)
		}
		c.pid = 0
		c.createTime = 0
		c.cmd = nil
	}
	c.mu.Unlock()
	close(done)
}

// Stop terminates the tracked process. Graceful sends SIGTERM first and
// escalates to SIGKILL when the stop timeout passes.
func (c *Controller) Stop(graceful bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stop(graceful)
}

func (c *Controller) stop(graceful bool) error {
	c.mu.Lock()
	if c.pid == 0 {
		c.adoptLocked()
	}
	if !c.liveLocked() {
		c.finalizeStopLocked()
		c.mu.Unlock()
		return ErrNoProcess
	}
	pid := c.pid
	done := c.done
	c.state = StateStopping
	c.mu.Unlock()

	p, err := process.NewProcess(pid)
	if err != nil {
		c.mu.Lock()
		c.finalizeStopLocked()
		c.mu.Unlock()
		return nil
	}

	if graceful {
		if err := p.Terminate(); err != nil && pidAlive(pid) {
			return fmt.Errorf("sending SIGTERM to pid %d: %w", pid, err)
		}
		if c.awaitExit(pid, done, c.cfg.StopTimeout) {
			c.mu.Lock()
			c.finalizeStopLocked()
			c.mu.Unlock()
			c.log.Info("suricata stopped", "pid", pid)
			return nil
		}
		c.log.Warn("stop timeout exceeded, killing", "pid", pid)
	}

	if err := p.Kill(); err != nil && pidAlive(pid) {
		return fmt.Errorf("killing pid %d: %w", pid, err)
	}
	c.awaitExit(pid, done, 2*time.Second)

	c.mu.Lock()
	c.finalizeStopLocked()
	c.mu.Unlock()
	c.log.Info("suricata stopped", "pid", pid, "graceful", false)
	return nil
}

func (c *Controller) finalizeStopLocked() {
	c.state = StateStopped
	c.pid = 0
	c.createTime = 0
	c.cmd = nil
	c.done = nil
}

// awaitExit blocks until the process is gone or the timeout passes. Spawned
// children signal through the reaper channel; adopted pids are polled.
func (c *Controller) awaitExit(pid int32, done chan struct{}, timeout time.Duration) bool {
	if done != nil {
		select {
		case <-done:
			return true
		case <-time.After(timeout):
			return false
		}
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return !pidAlive(pid)
}

// Restart is stop-then-start under one operation lock.
func (c *Controller) Restart() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.stop(true); err != nil && !errors.Is(err, ErrNoProcess) {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	return c.start()
}

// ReloadRules signals a live ruleset reload without restarting the engine.
func (c *Controller) ReloadRules() error {
	c.mu.Lock()
	if c.pid == 0 {
		c.adoptLocked()
	}
	live := c.liveLocked()
	pid := c.pid
	c.mu.Unlock()

	if !live {
		return ErrNotRunning
	}
	p, err := process.NewProcess(pid)
	if err != nil {
		return ErrNotRunning
	}
	if err := p.SendSignal(syscall.SIGUSR2); err != nil {
		return fmt.Errorf("sending SIGUSR2 to pid %d: %w", pid, err)
	}
	c.log.Info("rule reload signalled", "pid", pid)
	return nil
}

// ValidateConfig runs suricata in test mode against the configured yaml.
func (c *Controller) ValidateConfig(ctx context.Context) ValidationResult {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.SuricataBinary, "-T", "-c", c.cfg.SuricataConfig)
	out, err := cmd.CombinedOutput()

	res := ValidationResult{Output: string(out)}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Message = "configuration validation timed out"
	case err != nil:
		res.Message = fmt.Sprintf("configuration test failed: %v", err)
	default:
		res.Valid = true
		res.Message = "configuration is valid"
	}
	return res
}

// Status reports the current process state, adopting an externally started
// suricata and noticing vanished pids as a side effect.
func (c *Controller) Status() StatusInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pid == 0 {
		c.adoptLocked()
	}
	if c.pid != 0 && !c.liveLocked() {
		c.log.Warn("tracked pid vanished", "pid", c.pid)
		c.state = StateCrashed
		c.pid = 0
		c.createTime = 0
		c.cmd = nil
		c.done = nil
	}
	if c.pid == 0 {
		return StatusInfo{Status: string(c.state)}
	}

	info := StatusInfo{
		Running:   true,
		Status:    string(c.state),
		PID:       c.pid,
		Interface: c.iface,
	}
	if c.createTime > 0 {
		info.Uptime = formatUptime(time.Since(time.UnixMilli(c.createTime)))
	}
	if p, err := process.NewProcess(c.pid); err == nil {
		if cl, err := p.Cmdline(); err == nil {
			info.Cmdline = cl
		}
	}
	return info
}

// liveLocked reports whether the tracked pid still refers to the process we
// recorded, checking identity via creation time.
func (c *Controller) liveLocked() bool {
	if c.pid == 0 {
		return false
	}
	p, err := process.NewProcess(c.pid)
	if err != nil {
		return false
	}
	if c.createTime > 0 {
		ct, err := p.CreateTime()
		if err != nil || ct != c.createTime {
			return false
		}
	}
	statuses, err := p.Status()
	if err == nil {
		for _, s := range statuses {
			if s == process.Zombie {
				return false
			}
		}
	}
	return true
}

// adoptLocked scans the process table for a suricata started outside the
// dashboard and takes it over.
func (c *Controller) adoptLocked() {
	procs, err := process.Processes()
	if err != nil {
		return
	}
	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, _ := p.Name()
		if !strings.Contains(strings.ToLower(name), "suricata") {
			cmdline, _ := p.Cmdline()
			fields := strings.Fields(cmdline)
			if len(fields) == 0 || !strings.Contains(filepath.Base(fields[0]), "suricata") {
				continue
			}
		}
		ct, err := p.CreateTime()
		if err != nil {
			continue
		}
		c.pid = p.Pid
		c.createTime = ct
		c.state = StateRunning
		c.cmd = nil
		c.done = nil
		if c.iface == "" {
			c.iface = c.cfg.Interface
		}
		c.log.Info("adopted running suricata process", "pid", p.Pid)
		return
	}
}

// cleanStalePIDFiles removes leftover pid files that point at dead
// processes, which otherwise block a fresh start.
func (c *Controller) cleanStalePIDFiles() {
	for _, path := range stalePIDFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err == nil && pidAlive(int32(pid)) {
			continue
		}
		if err := os.Remove(path); err == nil {
			c.log.Info("removed stale pid file", "path", path)
		}
	}
}

func pidAlive(pid int32) bool {
	p, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// SystemInfo samples host resource usage for the status page.
func (c *Controller) SystemInfo() SystemInfo {
	info := SystemInfo{Platform: runtime.GOOS}
	if h, err := host.Info(); err == nil {
		info.Platform = strings.TrimSpace(h.Platform + " " + h.PlatformVersion)
	}
	if n, err := cpu.Counts(true); err == nil {
		info.CPUCount = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryAvailable = vm.Available
		info.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		info.DiskPercent = du.UsedPercent
	}
	return info
}

// Interfaces lists host network interfaces for the capture-interface picker.
func (c *Controller) Interfaces() ([]NetInterface, error) {
	ifaces, err := gnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	out := make([]NetInterface, 0, len(ifaces))
	for _, ifc := range ifaces {
		ni := NetInterface{Name: ifc.Name, MAC: ifc.HardwareAddr, MTU: ifc.MTU}
		for _, flag := range ifc.Flags {
			if flag == "up" {
				ni.IsUp = true
			}
		}
		for _, addr := range ifc.Addrs {
			ip := addr.Addr
			if i := strings.Index(ip, "/"); i >= 0 {
				ip = ip[:i]
			}
			if strings.Contains(ip, ":") {
				if ni.IPv6 == "" {
					ni.IPv6 = ip
				}
			} else if ni.IPv4 == "" {
				ni.IPv4 = ip
			}
		}
		out = append(out, ni)
	}
	return out, nil
}
