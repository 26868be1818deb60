package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"8086emu/machine"
)

// defaultSegments are the paragraph addresses a program assembles and runs
// under when it does not otherwise control its own loading: DS=0x2000,
// CS=0x3000, SS=0x5000, ES=0x7000.
var defaultSegments = map[string]uint16{
	"DS": 0x2000,
	"CS": 0x3000,
	"SS": 0x5000,
	"ES": 0x7000,
}

func main() {
	app := &cli.App{
		Name:      "8086emu",
		Usage:     "assemble and run an 8086 assembly source file",
		ArgsUsage: "<input.asm>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "interrupt",
				Aliases: []string{"i"},
				Usage:   "trace each executed instruction and interrupt dispatch",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one input file", 2)
	}
	path := c.Args().First()
	trace := c.Bool("interrupt")

	src, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("reading %s: %v", path, err), 1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		Level(zerolog.InfoLevel).
		With().Timestamp().Logger()
	if !trace {
		log = log.Level(zerolog.Disabled)
	}

	asm := machine.NewAssembler(defaultSegments)
	prog, err := asm.Assemble(string(src))
	if err != nil {
		return cli.Exit(fmt.Sprintf("assembling %s: %v", path, err), 1)
	}

	mem := machine.NewMemory()
	if err := machine.LoadInterruptVectorTable(mem); err != nil {
		return cli.Exit(fmt.Sprintf("loading interrupt vector table: %v", err), 1)
	}
	for reg, img := range prog.Images {
		base := prog.Symbols.SegmentAddress[reg]
		if err := mem.LoadImage(base, img); err != nil {
			return cli.Exit(fmt.Sprintf("loading %s segment image: %v", reg, err), 1)
		}
	}

	bus := machine.NewBIU(mem, defaultSegments["CS"], defaultSegments["DS"],
		defaultSegments["SS"], defaultSegments["ES"], prog.EntryIP)

	eu := machine.NewEU(bus)
	console := machine.NewConsole()
	defer console.Restore()
	eu.SetConsole(console)
	eu.SetTrace(machine.NewZerologTrace(log), trace)

	cpu := machine.NewCPU(bus, eu)
	if err := cpu.Run(); err != nil {
		cpu.PrintEndState(os.Stderr)
		return cli.Exit(fmt.Sprintf("%s: %v", path, err), 1)
	}

	cpu.PrintEndState(os.Stdout)
	return cli.Exit("", eu.ExitCode())
}
