// Package interactive provides the operator shell of the devhost daemon.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/resource"
	"github.com/devhost-project/devhost-go/pkg/rpc"
)

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// Config configures a Shell.
type Config struct {
	// Host is the device tree to operate on (required).
	Host *devhost.Host

	// Grants derives resource handles for "add ... scope" (optional).
	Grants *resource.Root

	// Out receives command output (default: os.Stdout).
	Out io.Writer
}

// Shell runs operator commands against a device tree. Paths are
// resolved from the root device; "/" names the root itself.
type Shell struct {
	host   *devhost.Host
	grants *resource.Root
	out    io.Writer

	handles map[int]*rpc.IOState
	next    int
}

// New creates a shell.
func New(cfg Config) *Shell {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &Shell{
		host:    cfg.Host,
		grants:  cfg.Grants,
		out:     out,
		handles: make(map[int]*rpc.IOState),
		next:    1,
	}
}

// Run reads commands with readline until EOF, "quit" or ctx ends. Open
// handles are closed on return and cancel is called.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "devhost> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	defer cancel()
	defer s.Close(context.Background())

	s.out = rl.Stdout()
	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return nil
		}

		if err := s.Exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(s.out, "Exiting...")
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "tree", "t":
		return s.cmdTree(ctx)
	case "drivers":
		return s.cmdDrivers()
	case "add":
		return s.cmdAdd(ctx, args)
	case "remove", "rm":
		return s.withDevice(ctx, args, 1, func(dev *devhost.Device) error {
			return s.host.Remove(ctx, dev)
		})
	case "bind":
		if len(args) != 2 {
			return fmt.Errorf("usage: bind <path> <libname>")
		}
		return s.withDevice(ctx, args[:1], 1, func(dev *devhost.Device) error {
			return s.host.Bind(ctx, dev, args[1])
		})
	case "rebind":
		return s.withDevice(ctx, args, 1, func(dev *devhost.Device) error {
			return s.host.Rebind(ctx, dev)
		})
	case "unbind":
		return s.withDevice(ctx, args, 1, func(dev *devhost.Device) error {
			return s.host.Unbind(ctx, dev)
		})
	case "path":
		return s.withDevice(ctx, args, 1, func(dev *devhost.Device) error {
			p, _, err := s.host.TopoPath(ctx, dev, 0)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, p)
			return nil
		})
	case "refs":
		return s.withDevice(ctx, args, 1, func(dev *devhost.Device) error {
			// Minus the reference held by this command.
			fmt.Fprintf(s.out, "%s: %d\n", dev.Name(), dev.Refs()-1)
			return nil
		})
	case "open", "o":
		return s.cmdOpen(ctx, args)
	case "read", "r":
		return s.cmdRead(ctx, args)
	case "write", "w":
		return s.cmdWrite(ctx, args)
	case "close", "c":
		return s.cmdClose(ctx, args)
	case "handles":
		s.cmdHandles()
		return nil
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (type 'help' for commands)", cmd)
	}
}

// Close closes every handle opened from the shell.
func (s *Shell) Close(ctx context.Context) {
	for id, st := range s.handles {
		_ = st.Close(ctx, 0)
		delete(s.handles, id)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Device tree:
  tree                      - Show the device tree
  drivers                   - List registered drivers
  add <parent> <name> [scope] - Add a device, optionally with a resource grant
  remove <path>             - Remove a device and its children
  bind <path> <libname>     - Bind a driver to a device
  rebind <path>             - Unbind and ask the coordinator to bind again
  unbind <path>             - Unbind a device's driver
  path <path>               - Show the topological path
  refs <path>               - Show the reference count

I/O:
  open <path>               - Open a device, prints a handle number
  read <handle> <n>         - Read up to n bytes
  write <handle> <text>     - Write text
  close <handle>            - Close a handle
  handles                   - List open handles

General:
  help                      - Show this help
  quit                      - Exit`)
}

func (s *Shell) lookup(ctx context.Context, path string) (*devhost.Ref, error) {
	root := s.host.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root device", devhost.ErrNotFound)
	}
	return s.host.Lookup(ctx, root, path, 0)
}

// withDevice resolves args[0] and runs fn with a reference held.
func (s *Shell) withDevice(ctx context.Context, args []string, n int, fn func(*devhost.Device) error) error {
	if len(args) != n {
		return fmt.Errorf("expected a device path")
	}
	ref, err := s.lookup(ctx, args[0])
	if err != nil {
		return err
	}
	defer ref.Drop()
	return fn(ref.Device())
}

func (s *Shell) cmdTree(ctx context.Context) error {
	return s.host.Walk(ctx, func(tx *devhost.Tx, dev *devhost.Device, depth int) error {
		drv := "-"
		if d := tx.BoundDriver(dev); d != nil {
			drv = d.LibName
		}
		fmt.Fprintf(s.out, "%s%s [id=%d state=%s flags=%s driver=%s refs=%d]\n",
			strings.Repeat("  ", depth), dev.Name(), dev.ID(), dev.State(), dev.Flags(), drv, dev.Refs())
		return nil
	})
}

func (s *Shell) cmdDrivers() error {
	for _, d := range s.host.Registry().Drivers() {
		status := "not loaded"
		switch {
		case d.Status() != nil:
			status = "failed: " + d.Status().Error()
		case d.Loaded():
			status = "loaded"
		}
		fmt.Fprintf(s.out, "%-8s %-14s %s (refs=%d)\n", d.LibName, d.Name, status, d.Refs())
	}
	return nil
}

func (s *Shell) cmdAdd(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: add <parent> <name> [scope]")
	}

	var add devhost.AddArgs
	if len(args) == 3 {
		if s.grants == nil {
			return fmt.Errorf("no resource root configured")
		}
		grant, err := s.grants.Grant(args[2])
		if err != nil {
			return err
		}
		add.Resource = grant
	}

	return s.withDevice(ctx, args[:1], 1, func(parent *devhost.Device) error {
		dev, err := s.host.Create(ctx, nil, parent, args[1], nil)
		if err != nil {
			return err
		}
		if err := s.host.Add(ctx, dev, parent, add); err != nil {
			dev.Release()
			return err
		}
		fmt.Fprintf(s.out, "added %s (id=%d)\n", dev.Name(), dev.ID())
		return nil
	})
}

func (s *Shell) handle(arg string) (int, *rpc.IOState, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid handle %q", arg)
	}
	st, ok := s.handles[id]
	if !ok {
		return 0, nil, fmt.Errorf("%w: handle %d", devhost.ErrNotFound, id)
	}
	return id, st, nil
}

func (s *Shell) cmdOpen(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: open <path>")
	}
	root := s.host.Root()
	if root == nil {
		return fmt.Errorf("%w: no root device", devhost.ErrNotFound)
	}
	st, err := rpc.Open(ctx, s.host, root, args[0], 0)
	if err != nil {
		return err
	}
	id := s.next
	s.next++
	s.handles[id] = st
	fmt.Fprintf(s.out, "handle %d -> %s\n", id, st.Device().Name())
	return nil
}

func (s *Shell) cmdRead(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read <handle> <n>")
	}
	_, st, err := s.handle(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return fmt.Errorf("invalid length %q", args[1])
	}
	data, err := st.Read(ctx, n)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d bytes: %q\n", len(data), data)
	return nil
}

func (s *Shell) cmdWrite(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write <handle> <text>")
	}
	_, st, err := s.handle(args[0])
	if err != nil {
		return err
	}
	n, err := st.Write(ctx, []byte(strings.Join(args[1:], " ")))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %d bytes\n", n)
	return nil
}

func (s *Shell) cmdClose(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: close <handle>")
	}
	id, st, err := s.handle(args[0])
	if err != nil {
		return err
	}
	delete(s.handles, id)
	return st.Close(ctx, 0)
}

func (s *Shell) cmdHandles() {
	ids := make([]int, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		st := s.handles[id]
		state := "open"
		if st.Dead() {
			state = "hung up"
		}
		fmt.Fprintf(s.out, "%d: %s offset=%d %s\n", id, st.Device().Name(), st.Offset(), state)
	}
}
