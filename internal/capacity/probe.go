// Package capacity reports filesystem headroom for directories a
// publish run writes into.
package capacity

import (
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/disk"
)

// Conversion scratch space fills up quickly when a large lossless
// library is re-encoded, so runs check headroom before writing.
const (
	warnPercent  = 80.0
	alertPercent = 90.0
)

// Usage describes how full the filesystem behind a path is.
type Usage struct {
	Path        string
	TotalBytes  uint64
	FreeBytes   uint64
	UsedPercent float64
}

// Constrained reports that the filesystem is over the warning threshold.
func (u Usage) Constrained() bool {
	return u.UsedPercent >= warnPercent
}

// Critical reports that the filesystem is nearly full.
func (u Usage) Critical() bool {
	return u.UsedPercent >= alertPercent
}

// FreeGiB returns the free space in gibibytes.
func (u Usage) FreeGiB() float64 {
	return float64(u.FreeBytes) / (1 << 30)
}

// Probe returns usage for the filesystem containing path.
func Probe(path string) (Usage, error) {
	if path == "" {
		return Usage{}, errors.New("no path to probe")
	}
	stat, err := disk.Usage(path)
	if err != nil {
		return Usage{}, errors.Wrapf(err, "probing disk usage for %s", path)
	}
	return Usage{
		Path:        path,
		TotalBytes:  stat.Total,
		FreeBytes:   stat.Free,
		UsedPercent: stat.UsedPercent,
	}, nil
}
