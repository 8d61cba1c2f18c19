package health

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// SystemSample holds resource usage percentages.
type SystemSample struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// Sampler reads system usage. dir selects the filesystem for disk usage.
type Sampler interface {
	Sample(dir string) (SystemSample, error)
}

// ProcSampler reads /proc and statfs.
type ProcSampler struct {
	StatPath    string
	MeminfoPath string

	mu        sync.Mutex
	lastTotal float64
	lastIdle  float64
}

// NewProcSampler returns a sampler for the running kernel.
func NewProcSampler() *ProcSampler {
	return &ProcSampler{StatPath: "/proc/stat", MeminfoPath: "/proc/meminfo"}
}

// Sample returns CPU usage since the previous call (since boot on the first
// call), memory usage and disk usage of dir.
func (p *ProcSampler) Sample(dir string) (SystemSample, error) {
	var sample SystemSample

	cpu, err := p.cpuPercent()
	if err != nil {
		return sample, err
	}
	sample.CPUPercent = cpu

	mem, err := memoryPercent(p.MeminfoPath)
	if err != nil {
		return sample, err
	}
	sample.MemoryPercent = mem

	disk, err := diskPercent(dir)
	if err != nil {
		return sample, err
	}
	sample.DiskPercent = disk
	return sample, nil
}

func (p *ProcSampler) cpuPercent() (float64, error) {
	total, idle, err := readCPUTimes(p.StatPath)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	dTotal, dIdle := total-p.lastTotal, idle-p.lastIdle
	p.lastTotal, p.lastIdle = total, idle
	if dTotal <= 0 {
		return 0, nil
	}
	return (dTotal - dIdle) / dTotal * 100, nil
}

// readCPUTimes returns the aggregate and idle jiffies of the "cpu " line.
func readCPUTimes(path string) (total, idle float64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			return 0, 0, fmt.Errorf("malformed cpu line in %s", path)
		}
		for i, f := range fields[1:8] {
			v, _ := strconv.ParseFloat(f, 64)
			total += v
			// idle and iowait
			if i == 3 || i == 4 {
				idle += v
			}
		}
		return total, idle, nil
	}
	return 0, 0, fmt.Errorf("no cpu line in %s", path)
}

func memoryPercent(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer file.Close()

	memInfo := make(map[string]float64)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 {
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
				memInfo[strings.TrimSuffix(fields[0], ":")] = v
			}
		}
	}

	total, ok := memInfo["MemTotal"]
	if !ok || total == 0 {
		return 0, fmt.Errorf("no MemTotal in %s", path)
	}
	available, ok := memInfo["MemAvailable"]
	if !ok {
		available = memInfo["MemFree"] + memInfo["Buffers"] + memInfo["Cached"]
	}
	return (total - available) / total * 100, nil
}

func diskPercent(dir string) (float64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	total := float64(st.Blocks) * float64(st.Bsize)
	if total == 0 {
		return 0, nil
	}
	free := float64(st.Bavail) * float64(st.Bsize)
	return (total - free) / total * 100, nil
}
