// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Program ehas assembles ARM exception-handling directive files into
// relocatable ELF objects.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"gate.computer/ehabi/internal/asm"
	"gate.computer/ehabi/internal/logger"
)

func main() {
	var (
		output  = flag.String("o", "a.o", "output object file")
		verbose = flag.Bool("v", false, "verbose logging")
		noColor = flag.Bool("n", false, "no color output")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] <input>\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.Init(*verbose, *noColor)

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	f, err := os.Open(input)
	if err != nil {
		log.Fatal("cannot open input", "error", err)
	}
	defer f.Close()

	ctx, err := asm.Assemble(f)
	if err != nil {
		log.Fatal("assembly failed", "file", input, "error", err)
	}

	out, err := os.Create(*output)
	if err != nil {
		log.Fatal("cannot create output", "error", err)
	}

	n, err := ctx.WriteTo(out)
	if err == nil {
		err = out.Close()
	}
	if err != nil {
		os.Remove(*output)
		log.Fatal("cannot write object", "file", *output, "error", err)
	}

	log.Debug("object written", "file", *output, "bytes", n)
}
