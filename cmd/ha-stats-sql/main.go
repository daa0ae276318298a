// Command ha-stats-sql prints the SQLite query that exports Home Assistant
// long-term statistics for the entities named by ha_stats sources. Save the
// result as CSV where the source's glob will find it.
package main

import (
	"flag"
	"fmt"
	"log"
	"slices"
	"strings"

	"home_energy/internal/config"
	"home_energy/internal/ingest"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $HOME_ENERGY_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	entities := statsEntities(cfg.Sources)
	if len(entities) == 0 {
		log.Fatal("no ha_stats sources configured")
	}
	fmt.Print(statsQuery(entities))
}

// statsEntities returns the distinct entity ids of ha_stats sources, sorted.
func statsEntities(specs []ingest.Spec) []string {
	var entities []string
	for _, s := range specs {
		if s.Kind == ingest.KindHAStats && !slices.Contains(entities, s.Entity) {
			entities = append(entities, s.Entity)
		}
	}
	slices.Sort(entities)
	return entities
}

func statsQuery(entities []string) string {
	quoted := make([]string, len(entities))
	for i, e := range entities {
		quoted[i] = "  '" + strings.ReplaceAll(e, "'", "''") + "'"
	}

	return fmt.Sprintf(`-- Long-term statistics (hourly aggregates, kept indefinitely)
SELECT
  statistics_meta.statistic_id AS sensor_id,
  statistics.start_ts AS start_time,
  statistics.mean AS avg,
  statistics.min AS min_val,
  statistics.max AS max_val
FROM statistics
JOIN statistics_meta ON statistics.metadata_id = statistics_meta.id
WHERE statistics_meta.statistic_id IN (
%s
)
ORDER BY statistics_meta.statistic_id, statistics.start_ts;
`, strings.Join(quoted, "\n  ,"))
}
