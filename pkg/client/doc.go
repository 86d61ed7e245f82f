/*
Package client is the worker agent's JSON-over-HTTP client for the control
plane (spec.md §4.9): register, heartbeat, and fetch the worker's
database/cache connection config across agent version upgrades.

# Usage

	c := client.NewClient("http://server:8080")

	reg, err := c.Register(ctx, "worker-1", true)
	if err != nil {
		log.Fatal(err)
	}

	hb, err := c.Heartbeat(ctx, reg.WorkerID, cpuPercent, memPercent, agentVersion)
	if hb.NeedUpdate {
		// self-update, see cmd/reconctl-agent
	}

	cfg, err := c.WorkersConfig(ctx, true)
	// cfg.DB / cfg.RedisURL feed the task container's own Postgres/Redis
	// connections directly — asset writes don't go through this client.
*/
package client
