// Command ghostkernel boots the simulation kernel: it loads the boot
// config and ramdisk image, wires every subsystem together through
// kernel.Boot, spawns the configured initial processes, and then either
// blocks waiting for a termination signal or hands the terminal to the
// boot console.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxdev1/ghostkernel/bootconsole"
	"github.com/maxdev1/ghostkernel/kernel"
	"github.com/maxdev1/ghostkernel/ramdisk"
)

func main() {
	var (
		configPath  = flag.String("config", "/etc/ghost/kernel.ini", "boot configuration path")
		lockPath    = flag.String("lock", "/var/run/ghostkernel.lock", "single-instance boot lock path")
		ramdiskPath = flag.String("ramdisk", "/boot/ramdisk.img", "ramdisk image path")
		ramdiskDB   = flag.String("ramdisk-index", "/var/run/ghostkernel-ramdisk.db", "ramdisk index database path")
		console     = flag.Bool("console", false, "take over the terminal with the scheduler dump console")
	)
	flag.Parse()

	raw, err := os.ReadFile(*ramdiskPath)
	if err != nil {
		fatal("reading ramdisk image: %v", err)
	}

	idx, err := ramdisk.Build(*ramdiskDB, raw)
	if err != nil {
		fatal("indexing ramdisk image: %v", err)
	}
	defer idx.Close()

	ctx, err := kernel.Boot(*configPath, *lockPath, idx, nil, idx.Paths())
	if err != nil {
		fatal("booting kernel: %v", err)
	}
	defer ctx.Shutdown()

	if err := ctx.SpawnConfigured(); err != nil {
		fatal("spawning configured processes: %v", err)
	}

	if *console {
		c := bootconsole.New(ctx.Scheduler)
		if err := c.Run(time.Second); err != nil {
			fatal("boot console: %v", err)
		}
		return
	}

	waitForShutdownSignal()
}

func waitForShutdownSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ghostkernel: "+format+"\n", args...)
	os.Exit(1)
}
