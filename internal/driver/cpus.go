package driver

import (
	"context"

	"github.com/jbweber/vmux/internal/backend"
	"github.com/jbweber/vmux/internal/cpumap"
)

// UsedCPUs returns the physical CPUs the vcpus of dom may run on. A nil
// bitmap means "no restriction known": either the data is unavailable or
// the vcpus together may use every CPU of the node. Adapter failures are
// not errors here, they just mean nothing can be said.
func (c *Conn) UsedCPUs(ctx context.Context, dom backend.Domain) (*cpumap.Bitmap, error) {
	c.mu.Lock()
	nodeCPUs := c.nodeCPUs
	c.mu.Unlock()

	if nodeCPUs <= 0 {
		return nil, nil
	}

	nvcpus, err := c.GetMaxVcpus(ctx, dom)
	if err != nil || nvcpus <= 0 {
		return nil, nil
	}

	node, err := c.NodeGetInfo(ctx)
	if err != nil {
		return nil, nil
	}
	mapLen := cpumap.MapLen(node.MaxCPUs())
	if mapLen <= 0 {
		return nil, nil
	}

	vcpus, err := c.GetVcpus(ctx, dom, nvcpus, mapLen)
	if err != nil {
		return nil, nil
	}

	used := cpumap.New(nodeCPUs)
	for n := range vcpus.Info {
		for m := 0; m < nodeCPUs; m++ {
			if used.IsSet(m) || !cpumap.Usable(vcpus.CPUMaps, mapLen, n, m) {
				continue
			}
			used.Set(m)
			if used.Count() == nodeCPUs {
				return nil, nil
			}
		}
	}
	return used, nil
}
