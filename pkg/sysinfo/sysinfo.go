// Package sysinfo captures a fingerprint of the host the launch runs on.
// The fingerprint is logged at launch and shown by `stagezero inspect`;
// it is diagnostic only and never gates a stage.
package sysinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Fingerprint describes the execution host.
type Fingerprint struct {
	Hostname       string `json:"hostname" yaml:"hostname"`
	OS             string `json:"os" yaml:"os"`
	Arch           string `json:"arch" yaml:"arch"`
	Platform       string `json:"platform,omitempty" yaml:"platform,omitempty"`
	KernelVersion  string `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty"`
	Virtualization string `json:"virtualization,omitempty" yaml:"virtualization,omitempty"`
	CPUModel       string `json:"cpu_model,omitempty" yaml:"cpu_model,omitempty"`
	CPUThreads     int    `json:"cpu_threads" yaml:"cpu_threads"`
	MemTotalBytes  uint64 `json:"mem_total_bytes" yaml:"mem_total_bytes"`
}

// Collect gathers the fingerprint. Probes that fail leave their field
// zero; a partially blind fingerprint must never abort a launch.
func Collect() Fingerprint {
	fp := Fingerprint{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUThreads: runtime.NumCPU(),
	}

	if info, err := host.Info(); err == nil {
		fp.Hostname = info.Hostname
		fp.Platform = info.Platform + " " + info.PlatformVersion
		fp.KernelVersion = info.KernelVersion
		if info.VirtualizationSystem != "" {
			fp.Virtualization = info.VirtualizationSystem + "/" + info.VirtualizationRole
		}
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		fp.CPUModel = infos[0].ModelName
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		fp.MemTotalBytes = vm.Total
	}

	return fp
}
