package upload

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/host"
)

// HostFields describes the machine the dump was captured on, as extra
// multipart fields.
func HostFields(ctx context.Context) ([]Field, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	return hostFieldsFrom(info), nil
}

func hostFieldsFrom(info *host.InfoStat) []Field {
	return []Field{
		{Name: "OS", Value: info.OS},
		{Name: "Platform", Value: info.Platform},
		{Name: "PlatformVersion", Value: info.PlatformVersion},
		{Name: "KernelArch", Value: info.KernelArch},
	}
}
