package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// stdioReadWriter pairs stdin/stdout for term.NewTerminal.
type stdioReadWriter struct{}

func (stdioReadWriter) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioReadWriter) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// RunMonitorTerminal runs the kernel monitor interactively on stdin/stdout.
// With a real terminal it switches to raw mode for line editing and history;
// piped input falls back to a plain line reader. Only instantiated in
// main.go for interactive use - never in tests.
func RunMonitorTerminal(k *Kernel, arb *AddressArbiter) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return runMonitorPlain(k, arb)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("terminal_host: failed to set raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	t := term.NewTerminal(stdioReadWriter{}, "nx> ")
	mon := NewKernelMonitor(k, arb, t)
	fmt.Fprintln(t, "IntuitionNX kernel monitor - type help for commands")

	for {
		line, err := t.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := mon.Execute(line); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Fprintln(t, err.Error())
		}
	}
}

// runMonitorPlain drives the monitor over non-terminal stdin (scripts, CI).
func runMonitorPlain(k *Kernel, arb *AddressArbiter) error {
	mon := NewKernelMonitor(k, arb, os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("nx> ")
	for scanner.Scan() {
		if err := mon.Execute(scanner.Text()); err != nil {
			if err == io.EOF {
				return nil
			}
			fmt.Println(err.Error())
		}
		fmt.Print("nx> ")
	}
	return scanner.Err()
}
