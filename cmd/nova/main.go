package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/novavm/nova/internal/codecache"
	"github.com/novavm/nova/internal/jit"
	"go.uber.org/zap"
)

var (
	codeCacheBaselineSize = flag.Int64("codecache-baseline-size", codecache.DefaultConfig().ReservedBaselineCodeCacheSize, "Bytes reserved for the baseline JIT code cache")
	codeCacheOptSize      = flag.Int64("codecache-opt-size", codecache.DefaultConfig().ReservedOptCodeCacheSize, "Bytes reserved for the optimizing JIT code cache")
	codeCacheBootSize     = flag.Int64("codecache-boot-size", codecache.DefaultConfig().ReservedBootCodeCacheSize, "Bytes reserved for the boot code region")
	codeCacheContention   = flag.Int("codecache-contention-frequency", codecache.DefaultConfig().CodeCacheContentionFrequency, "Force a baseline eviction every N allocations (0 disables)")
	codeCacheTraceAlloc   = flag.Bool("codecache-trace-alloc", codecache.DefaultConfig().TraceCodeAllocation, "Log every code cache allocation and eviction")

	fillerFunctions = flag.Int("fillers", 64, "Number of throwaway functions to allocate after wiring the call (they trigger eviction with -codecache-contention-frequency)")
	snapshotOut     = flag.Bool("snapshot", true, "Print the final code cache snapshot as JSON")
)

func main() {
	flag.Parse()

	cfg := codecache.DefaultConfig()
	cfg.ReservedBaselineCodeCacheSize = *codeCacheBaselineSize
	cfg.ReservedOptCodeCacheSize = *codeCacheOptSize
	cfg.ReservedBootCodeCacheSize = *codeCacheBootSize
	cfg.CodeCacheContentionFrequency = *codeCacheContention
	cfg.TraceCodeAllocation = *codeCacheTraceAlloc
	if cfg.TraceCodeAllocation {
		if l, err := zap.NewDevelopment(); err == nil {
			codecache.SetLogger(l)
		}
	}

	cc, err := codecache.Init(codecache.Options{
		Config:       cfg,
		Reachability: survivorsOnly,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing code cache: %v\n", err)
		os.Exit(1)
	}

	if err := runDemo(cc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *snapshotOut {
		data, err := cc.Snapshot().ToJSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	}
}

// survivors holds the two bundles the demo keeps alive across every forced
// eviction, so the caller→callee call survives compaction.
var survivors = map[*codecache.Bundle]bool{}

func survivorsOnly(b *codecache.Bundle) bool { return survivors[b] }

// runDemo wires a caller function to a callee through FunctionTable exactly
// as the real JIT pipeline would once it compiles machine code: allocate,
// patch the call site, register by name, then keep allocating fillers. The
// baseline half evicts and relocates both only when
// -codecache-contention-frequency is set or the fillers fill the half.
func runDemo(cc *codecache.CodeCache) error {
	ft := jit.GetFunctionTable()

	calleeBundle, err := cc.Allocate(codecache.BundleLayout{CodeLen: 16}, methodName("helper"), false, codecache.LifespanShort)
	if err != nil {
		return fmt.Errorf("allocate helper: %w", err)
	}
	calleeBundle.Code()[len(calleeBundle.Code())-1] = 0xC3 // ret
	survivors[calleeBundle] = true
	ft.SetCompiled("helper", jit.NewCompiledFunc(calleeBundle))

	callerBundle, err := cc.Allocate(codecache.BundleLayout{CodeLen: 16}, methodName("main"), false, codecache.LifespanShort)
	if err != nil {
		return fmt.Errorf("allocate main: %w", err)
	}
	callerBundle.Code()[0] = 0xE8 // direct call opcode; patchDirectCall fills in the displacement
	callerBundle.Code()[len(callerBundle.Code())-1] = 0xC3
	survivors[callerBundle] = true

	// "main" calls "helper" at offset 0; helper is already compiled, so this
	// patches immediately instead of queuing.
	ft.AddPatchSite("helper", jit.PatchSite{
		CodeAddr:     callerBundle.CodeStart(),
		PatchType:    jit.PatchTypeCall,
		CallerFunc:   "main",
		CallerBundle: callerBundle,
	})

	fmt.Printf("main calls helper at %#x\n", callerBundle.CallTarget(1))

	for i := 0; i < *fillerFunctions; i++ {
		b, err := cc.Allocate(codecache.BundleLayout{CodeLen: 16}, methodName(fmt.Sprintf("filler-%d", i)), false, codecache.LifespanShort)
		if err != nil {
			return fmt.Errorf("allocate filler %d: %w", i, err)
		}
		b.Code()[len(b.Code())-1] = 0xC3
	}

	fmt.Printf("after %d fillers, main calls helper at %#x (helper now at %#x)\n",
		*fillerFunctions, callerBundle.CallTarget(1), calleeBundle.CodeStart())

	return nil
}

type methodName string

func (n methodName) MethodName() string { return string(n) }
