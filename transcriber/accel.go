package transcriber

import (
	"fmt"
	"runtime"
	"strconv"
)

// Accelerator decides how the local engine uses the hardware. It only
// contributes command-line arguments; nothing else branches on it.
type Accelerator interface {
	Name() string
	Args() []string
}

func NewAccelerator(name string) (Accelerator, error) {
	switch name {
	case "", "auto":
		return autoAccel{}, nil
	case "cpu":
		return cpuAccel{threads: min(runtime.NumCPU(), 8)}, nil
	case "gpu":
		return gpuAccel{}, nil
	default:
		return nil, fmt.Errorf("unknown accelerator %q (want auto, cpu or gpu)", name)
	}
}

// autoAccel leaves device selection to the binary's build.
type autoAccel struct{}

func (autoAccel) Name() string   { return "auto" }
func (autoAccel) Args() []string { return nil }

type cpuAccel struct {
	threads int
}

func (cpuAccel) Name() string { return "cpu" }

func (c cpuAccel) Args() []string {
	return []string{"-ng", "-t", strconv.Itoa(max(c.threads, 1))}
}

type gpuAccel struct{}

func (gpuAccel) Name() string   { return "gpu" }
func (gpuAccel) Args() []string { return []string{"-fa"} }
