package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/ehrlich-b/go-blockbench"
	"github.com/ehrlich-b/go-blockbench/internal/fixture"
	"github.com/ehrlich-b/go-blockbench/strategy"
)

// REPL walks through the strategies one phase at a time. An empty line
// races the current phase's strategy, q moves to the next phase.
type REPL struct {
	bench *bench
	names []string
	phase int
	liner *liner.State
}

var replCommands = []string{"q", "run", "workers", "pattern", "window", "drop", "list", "info", "help", "exit"}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".blockbench_history")
}

// Run starts the loop. It returns when every phase is done, on exit, or
// when a round fails with anything but a configuration error.
func (r *REPL) Run(ctx context.Context) error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()
	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}
	defer r.saveHistory()

	fmt.Println("Press enter to race the current strategy, q for the next one, help for commands.")
	for r.phase < len(r.names) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := r.liner.Prompt(fmt.Sprintf("%s> ", r.names[r.phase]))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if err := r.race(ctx, r.names[r.phase]); err != nil {
				return err
			}
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd, args := strings.ToLower(parts[0]), parts[1:]
		switch cmd {
		case "q", "next":
			r.phase++
		case "exit", "quit":
			return nil
		case "run":
			if len(args) != 1 {
				fmt.Println("usage: run <strategy>")
				continue
			}
			if err := r.race(ctx, args[0]); err != nil {
				return err
			}
		case "workers":
			r.cmdWorkers(args)
		case "pattern":
			r.cmdPattern(args)
		case "window":
			r.cmdWindow(args)
		case "drop":
			if err := fixture.DropCache(r.bench.opts.Path); err != nil {
				fmt.Printf("drop failed: %v\n", err)
			}
		case "list", "ls":
			r.cmdList()
		case "info":
			r.cmdInfo()
		case "help", "?":
			r.printHelp()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
	return nil
}

// race runs one round. Configuration errors are reported and the loop
// continues; anything else ends the session.
func (r *REPL) race(ctx context.Context, name string) error {
	err := r.bench.race(ctx, name)
	if blockbench.IsCode(err, blockbench.ErrCodeConfiguration) {
		fmt.Printf("error: %v\n", err)
		return nil
	}
	return err
}

func (r *REPL) cmdWorkers(args []string) {
	if len(args) != 1 {
		fmt.Printf("workers = %d\n", r.bench.opts.Workers)
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		fmt.Printf("invalid worker count %q\n", args[0])
		return
	}
	r.bench.opts.Workers = n
}

func (r *REPL) cmdPattern(args []string) {
	if len(args) == 0 || len(args) > 2 {
		fmt.Printf("pattern = %s\n", r.bench.opts.Pattern)
		return
	}
	var m uint64
	if len(args) == 2 {
		var err error
		if m, err = strconv.ParseUint(args[1], 10, 64); err != nil {
			fmt.Printf("invalid multiplier %q\n", args[1])
			return
		}
	}
	p, err := blockbench.ParsePattern(args[0], m)
	if err == nil {
		err = p.Validate(r.bench.opts.Geometry.BlockCount())
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	r.bench.opts.Pattern = p
}

func (r *REPL) cmdWindow(args []string) {
	if len(args) != 1 {
		fmt.Printf("window = %d (ring entries %d)\n", r.bench.opts.Window, r.bench.opts.RingEntries)
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		fmt.Printf("invalid window %q\n", args[0])
		return
	}
	r.bench.opts.Window = n
	if r.bench.opts.RingEntries < n {
		r.bench.opts.RingEntries = n
	}
	if r.bench.opts.BatchWait > n {
		r.bench.opts.BatchWait = n
	}
}

func (r *REPL) cmdList() {
	for i, name := range strategy.Names() {
		marker := " "
		if i < len(r.names) && r.phase < len(r.names) && name == r.names[r.phase] {
			marker = "*"
		}
		fmt.Printf(" %s %s\n", marker, name)
	}
}

func (r *REPL) cmdInfo() {
	o := r.bench.opts
	fmt.Printf("host:     %s\n", r.bench.host)
	fmt.Printf("fixture:  %s (%d blocks of %d, %d read per block)\n",
		o.Path, o.Geometry.BlockCount(), o.Geometry.BlockSize, o.Geometry.PageReadSize)
	fmt.Printf("pattern:  %s\n", o.Pattern)
	fmt.Printf("workers:  %d  window: %d  batch wait: %d  ring entries: %d  engine: %s  direct: %v\n",
		o.Workers, o.Window, o.BatchWait, o.RingEntries, o.Engine, o.Direct)
	if r.bench.verified {
		fmt.Printf("expected: %d\n", r.bench.expected)
	}
}

func (r *REPL) printHelp() {
	fmt.Println(`Commands:
  <enter>                 race the current strategy
  q                       move to the next strategy
  run <strategy>          race any strategy once
  workers [n]             show or set the shard count
  pattern [seq|strided] [m]
                          show or set the access pattern
  window [n]              show or set reads in flight per worker
  drop                    evict the fixture from the page cache
  list                    list strategies
  info                    show host and settings
  exit                    leave`)
}

func (r *REPL) completer(line string) []string {
	var out []string
	if strings.HasPrefix(line, "run ") {
		for _, name := range strategy.Names() {
			if strings.HasPrefix("run "+name, line) {
				out = append(out, "run "+name)
			}
		}
		return out
	}
	for _, c := range replCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}
