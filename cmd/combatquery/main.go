// Command combatquery is a one-shot batch tool: it parses a historical
// combat log in full, persists every encounter it finds, then answers a
// single aggregate query against the result and prints a report. Mirrors
// cmd/analyze-init's one-shot batch-tool shape (flag-driven, no server
// loop, a formatted report to stdout, then exit).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raidforge/combatlog/internal/config"
	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/processor"
	"github.com/raidforge/combatlog/internal/session"
	gosignal "github.com/raidforge/combatlog/internal/signal"
	"github.com/raidforge/combatlog/internal/storage"
	"github.com/raidforge/combatlog/internal/tail"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/combattail.yaml", "path to the host config file")
	query := flag.String("query", "entities", "one of: abilities, entities, raid, deaths")
	sourceEntityID := flag.Int64("source", 0, "source entity id (required for -query=abilities)")
	encounterList := flag.String("encounters", "", "comma-separated encounter ids to restrict the query to (default: all)")
	startSecs := flag.Float64("start", 0, "restrict to rows at or after this Unix time in seconds (0 = no lower bound)")
	endSecs := flag.Float64("end", 0, "restrict to rows at or before this Unix time in seconds (0 = no upper bound)")
	shieldIDs := flag.String("shield-effects", "", "comma-separated effect ids treated as shields (required for -query=raid)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})))

	if err := ingestLog(cfg); err != nil {
		return fmt.Errorf("ingesting log: %w", err)
	}

	dbStore, err := storage.OpenStore(":memory:", cfg.EncountersDir)
	if err != nil {
		return fmt.Errorf("opening query store: %w", err)
	}
	defer dbStore.Close()

	encounterIdxs, err := parseEncounterList(*encounterList)
	if err != nil {
		return err
	}
	if len(encounterIdxs) == 0 {
		encounterIdxs, err = discoverEncounters(cfg.EncountersDir)
		if err != nil {
			return fmt.Errorf("discovering encounter files: %w", err)
		}
	}
	for _, idx := range encounterIdxs {
		if err := dbStore.LoadEncounter(context.Background(), idx); err != nil {
			return fmt.Errorf("loading encounter %d: %w", idx, err)
		}
	}

	filter := storage.Filter{EncounterIdxs: encounterIdxs}
	if *startSecs != 0 || *endSecs != 0 {
		filter.HasTimeRange = true
		filter.StartSecs = *startSecs
		filter.EndSecs = *endSecs
		if *endSecs == 0 {
			filter.EndSecs = 1e15 // no upper bound
		}
	}

	switch *query {
	case "abilities":
		if *sourceEntityID == 0 {
			return fmt.Errorf("-query=abilities requires -source")
		}
		rows, err := dbStore.AbilityBreakdown(context.Background(), *sourceEntityID, filter)
		if err != nil {
			return err
		}
		fmt.Println("Ability            Damage       Hits  Crits   % of Total")
		fmt.Println("-----------------  -----------  ----  -----  -----------")
		for _, r := range rows {
			fmt.Printf("%-17s  %11d  %4d  %5d  %10.1f%%\n", r.AbilityName, r.TotalDamage, r.Hits, r.Crits, r.PercentOfTotal)
		}

	case "entities":
		rows, err := dbStore.EntityBreakdown(context.Background(), filter)
		if err != nil {
			return err
		}
		fmt.Println("Entity             Damage Dealt  Healing Done  Damage Taken  Absorbed")
		fmt.Println("-----------------  ------------  ------------  ------------  --------")
		for _, r := range rows {
			fmt.Printf("%-17s  %12d  %12d  %12d  %8d\n", r.Name, r.TotalDamage, r.TotalHealing, r.DamageTaken, r.DamageAbsorbed)
		}

	case "raid":
		ids, err := parseInt64List(*shieldIDs)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("-query=raid requires -shield-effects")
		}
		rows, err := dbStore.RaidOverview(context.Background(), ids, filter)
		if err != nil {
			return err
		}
		fmt.Println("Entity ID  Shielding Given")
		fmt.Println("---------  ---------------")
		for _, r := range rows {
			fmt.Printf("%9d  %15d\n", r.EntityID, r.ShieldingGiven)
		}

	case "deaths":
		rows, err := dbStore.PlayerDeaths(context.Background(), filter)
		if err != nil {
			return err
		}
		fmt.Println("Player             Encounter  Timestamp (ms)")
		fmt.Println("-----------------  ---------  --------------")
		for _, r := range rows {
			fmt.Printf("%-17s  %9d  %14d\n", r.Name, r.EncounterIdx, r.TimestampMs)
		}

	default:
		return fmt.Errorf("unknown -query %q", *query)
	}

	return nil
}

// ingestLog drives the historical log through the same pipeline combattail
// drives the live one through, so that a fresh set of encounter files
// exists under cfg.EncountersDir for the query half to load.
func ingestLog(cfg config.Config) error {
	defStore, err := defs.NewStore(cfg.DefinitionsDir, false)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}

	cache := session.New()
	cache.LoadBossDefinitions(defStore.Bosses())

	bus := gosignal.NewBus()
	proc := processor.New(cache, bus)

	writer, err := storage.NewWriter(cfg.EncountersDir, slog.Default())
	if err != nil {
		return fmt.Errorf("creating encounter writer: %w", err)
	}

	bus.Subscribe(gosignal.HandlerFunc(func(batch []gosignal.Signal) {
		for _, s := range batch {
			if s.Kind == gosignal.KindCombatEnded {
				if err := writer.Flush(uint32(s.EncounterID)); err != nil {
					slog.Warn("encounter flush failed", "encounter", s.EncounterID, "error", err)
				}
			}
		}
	}))

	parser := logline.NewParser(time.Now(), nil)

	_, lines, err := tail.ReadFileStreaming(context.Background(), cfg.LogPath, func(line string, lineNo uint64) {
		ev, ok := parser.Parse(line, logline.LineNumber(lineNo))
		if !ok {
			return
		}

		rowCtx := storage.RowContext{
			EncounterIdx: uint32(cache.Current().ID),
			PhaseName:    cache.Current().CurrentPhase,
			AreaName:     cache.Area.Name,
		}
		if bossDef, ok := cache.ActiveBoss(); ok {
			rowCtx.BossName = bossDef.Name
			rowCtx.AreaName = bossDef.AreaName
		}
		writer.AddRow(&ev, rowCtx)

		proc.Process(&ev)
	})
	if err != nil {
		return err
	}
	slog.Info("log ingested", "lines", lines)

	return writer.Flush(uint32(cache.Current().ID))
}

// discoverEncounters scans dir for encounter_<idx>.msgpack.flate files when
// the caller didn't restrict the query to a specific set.
func discoverEncounters(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "encounter_") || !strings.HasSuffix(name, ".msgpack.flate") {
			continue
		}
		idxStr := strings.TrimSuffix(strings.TrimPrefix(name, "encounter_"), ".msgpack.flate")
		idx, err := strconv.ParseUint(idxStr, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(idx))
	}
	return out, nil
}

func parseEncounterList(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var out []uint32
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid encounter id %q: %w", part, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

func parseInt64List(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid effect id %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}
