package assetstore

import (
	"context"
	"fmt"

	"github.com/xingrin/reconctl/pkg/ingest"
	"github.com/xingrin/reconctl/pkg/types"
)

// SaveBatch satisfies pkg/ingest.BatchSink: tool determines which
// canonical/snapshot table pair the batch belongs to (subfinder/amass→
// Subdomain, naabu→HostPortMapping, httpx→Website, katana→Endpoint,
// dalfox/nuclei→Vulnerability), since pkg/ingest only knows the dialect,
// not the table.
func (s *Store) SaveBatch(ctx context.Context, scanID, tool string, rows []ingest.Row) error {
	switch tool {
	case "subfinder", "amass":
		subdomains := make([]types.Subdomain, 0, len(rows))
		for _, r := range rows {
			subdomains = append(subdomains, r.(types.Subdomain))
		}
		_, err := s.SaveAndSyncSubdomains(ctx, scanID, subdomains)
		return err

	case "naabu":
		mappings := make([]types.HostPortMapping, 0, len(rows))
		for _, r := range rows {
			mappings = append(mappings, r.(types.HostPortMapping))
		}
		_, err := s.SaveAndSyncHostPortMappings(ctx, scanID, mappings)
		return err

	case "httpx":
		assets := make([]types.HTTPAsset, 0, len(rows))
		for _, r := range rows {
			assets = append(assets, r.(types.HTTPAsset))
		}
		_, err := s.SaveAndSyncWebsites(ctx, scanID, assets)
		return err

	case "katana":
		assets := make([]types.HTTPAsset, 0, len(rows))
		for _, r := range rows {
			assets = append(assets, r.(types.HTTPAsset))
		}
		_, err := s.SaveAndSyncEndpoints(ctx, scanID, assets)
		return err

	case "dalfox", "nuclei":
		vulns := make([]types.Vulnerability, 0, len(rows))
		for _, r := range rows {
			vulns = append(vulns, r.(types.Vulnerability))
		}
		_, err := s.SaveAndSyncVulnerabilities(ctx, scanID, vulns)
		return err

	default:
		return fmt.Errorf("assetstore: no table mapping for tool %q", tool)
	}
}
