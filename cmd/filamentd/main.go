// Command filamentd loads a YAML manifest describing a set of processes and
// their module pipelines, spawns them under one kernel, and drives them
// through repeated Weave cycles until terminated.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/filament-run/filament"
	"github.com/filament-run/filament/internal/capability"
	"github.com/filament-run/filament/internal/codec"
	"github.com/filament-run/filament/internal/engine"
	"github.com/filament-run/filament/internal/logging"
	"github.com/filament-run/filament/internal/process"
	"github.com/filament-run/filament/internal/supervisor"
	"github.com/filament-run/filament/internal/timeline"
)

// Manifest describes every process a host should spawn at startup.
type Manifest struct {
	TickIntervalMs int           `yaml:"tick_interval_ms"`
	Processes      []ProcessSpec `yaml:"processes"`
}

// ProcessSpec is one process's manifest entry: its resource budget, granted
// capabilities, dynamic channels, and module pipeline.
type ProcessSpec struct {
	Name            string        `yaml:"name"`
	Policy          string        `yaml:"policy"` // "shared" or "dedicated"
	MemMax          uint64        `yaml:"mem_max"`
	ComputeMax      uint64        `yaml:"compute_max"`
	TimeBudgetNs    uint64        `yaml:"time_budget_ns"`
	StagingBytes    int           `yaml:"staging_bytes"`
	Retention       string        `yaml:"retention"` // "strict", "prunable", or "mutable"
	BlobShards      int           `yaml:"blob_shards"`
	DMAEnabled      bool          `yaml:"dma_enabled"`
	AllowEscalation bool          `yaml:"allow_escalation"`
	Grants          []GrantSpec   `yaml:"grants"`
	Channels        []ChannelSpec `yaml:"channels"`
	Modules         []ModuleSpec  `yaml:"modules"`
}

// GrantSpec is one capability URN granted to a process.
type GrantSpec struct {
	URN string `yaml:"urn"`
}

// ChannelSpec declares one dynamic channel binding a process owns or joins.
type ChannelSpec struct {
	URI        string `yaml:"uri"`
	SchemaHash uint64 `yaml:"schema_hash"`
	RootType   uint32 `yaml:"root_type"`
}

// ModuleSpec names a WASM file on disk implementing one Logic-context
// pipeline stage; its digest is computed from the file contents at load
// time rather than declared in the manifest.
type ModuleSpec struct {
	Path           string `yaml:"path"`
	MemRequirement uint32 `yaml:"mem_requirement"`
}

func main() {
	var (
		manifestPath = flag.String("manifest", "", "path to a YAML process manifest")
		verbose      = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *manifestPath == "" {
		log.Fatal("filamentd: -manifest is required")
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	manifestBytes, err := os.ReadFile(*manifestPath)
	if err != nil {
		logger.Error("failed to read manifest", "path", *manifestPath, "error", err)
		os.Exit(1)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		logger.Error("failed to parse manifest", "error", err)
		os.Exit(1)
	}
	if manifest.TickIntervalMs <= 0 {
		manifest.TickIntervalMs = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wasmEngine := engine.NewWasmEngine(ctx)
	kernel := filament.NewKernel()

	procs := make(map[string]*filament.Process, len(manifest.Processes))
	for _, spec := range manifest.Processes {
		params, err := buildProcessParams(spec, wasmEngine)
		if err != nil {
			logger.Error("failed to build process", "name", spec.Name, "error", err)
			os.Exit(1)
		}
		p, err := filament.Spawn(ctx, kernel, supervisor.RootID, params, &filament.Options{Logger: logger})
		if err != nil {
			logger.Error("failed to spawn process", "name", spec.Name, "error", err)
			os.Exit(1)
		}
		p.CommitSpawn()
		procs[spec.Name] = p
		logger.Info("spawned process", "name", spec.Name, "id", p.ID())
	}

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1024*1024)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			filename := fmt.Sprintf("filamentd-stacks-%d.txt", time.Now().Unix())
			if f, err := os.Create(filename); err == nil {
				f.Write(buf[:n])
				pprof.Lookup("goroutine").WriteTo(f, 2)
				f.Close()
				logger.Info("stack trace written to file", "file", filename)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	tickInterval := time.Duration(manifest.TickIntervalMs) * time.Millisecond
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var virtTimeNs uint64
	tickDeltaNs := uint64(tickInterval.Nanoseconds())

	logger.Info("filamentd running", "processes", len(procs), "tick_interval_ms", manifest.TickIntervalMs)

runLoop:
	for {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			break runLoop
		case <-ticker.C:
			virtTimeNs += tickDeltaNs
			for name, p := range procs {
				if _, err := p.Tick(ctx, virtTimeNs, nil); err != nil {
					logger.Warn("weave tick error", "process", name, "error", err)
				}
			}
		}
	}

	cancel()
	for name, p := range procs {
		if err := filament.Terminate(context.Background(), p); err != nil {
			logger.Error("error terminating process", "process", name, "error", err)
		} else {
			logger.Info("process terminated", "process", name)
		}
	}
}

func buildProcessParams(spec ProcessSpec, wasmEngine engine.Engine) (filament.ProcessParams, error) {
	params := filament.DefaultProcessParams()
	params.Policy = parsePolicy(spec.Policy)
	params.AllowEscalation = spec.AllowEscalation
	params.Retention = parseRetention(spec.Retention)

	if spec.MemMax > 0 {
		params.MemMax = spec.MemMax
	}
	params.ComputeMax = spec.ComputeMax
	params.TimeBudgetNs = spec.TimeBudgetNs
	if spec.StagingBytes > 0 {
		params.StagingBytes = spec.StagingBytes
	}
	if spec.BlobShards > 0 {
		params.BlobShards = spec.BlobShards
	}
	params.DMAEnabled = spec.DMAEnabled

	for _, g := range spec.Grants {
		params.Grants = append(params.Grants, capability.Grant{URN: g.URN})
	}
	for _, c := range spec.Channels {
		params.Channels = append(params.Channels, supervisor.ChannelBinding{
			URI:        c.URI,
			SchemaHash: c.SchemaHash,
			RootType:   c.RootType,
		})
	}

	for _, m := range spec.Modules {
		code, err := os.ReadFile(m.Path)
		if err != nil {
			return params, fmt.Errorf("read module %s: %w", m.Path, err)
		}
		low, high := sumDigest(code)
		params.Stages = append(params.Stages, process.StageSpec{
			Engine: wasmEngine,
			Code:   code,
			Info: codec.FilamentModuleInfo{
				ContextTag:     0, // Logic context: every WASM pipeline stage runs sandboxed
				MemRequirement: m.MemRequirement,
				DigestLow:      low,
				DigestHigh:     high,
			},
		})
	}
	return params, nil
}

func sumDigest(code []byte) (low, high uint64) {
	sum := sha256.Sum256(code)
	return binary.LittleEndian.Uint64(sum[0:8]), binary.LittleEndian.Uint64(sum[8:16])
}

func parsePolicy(s string) filament.Policy {
	if s == "dedicated" {
		return filament.Dedicated
	}
	return filament.Shared
}

func parseRetention(s string) timeline.Policy {
	switch s {
	case "prunable":
		return timeline.Prunable
	case "mutable":
		return timeline.Mutable
	default:
		return timeline.Strict
	}
}
