package hardware

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/lk2023060901/scenekeep-go/pkg/log"
)

// GetCPUNum 返回可用于计算任务的逻辑 CPU 数量。
// 结果不超过 GOMAXPROCS，gopsutil 查询失败时退回 runtime.NumCPU。
func GetCPUNum() int {
	procs := runtime.GOMAXPROCS(0)
	cnt, err := cpu.Counts(true)
	if err != nil || cnt <= 0 {
		log.Warn("failed to get cpu counts", zap.Error(err))
		cnt = runtime.NumCPU()
	}
	if procs > 0 && procs < cnt {
		return procs
	}
	return cnt
}
