// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"flag"
	"fmt"
	"strings"
	"sync"

	"github.com/midtools/mzmid/internal/isotope"
	"github.com/midtools/mzmid/internal/mid"
	"github.com/midtools/mzmid/internal/percolator"
)

var debugPeptide *string // Print debug output for matching peptides

// Trace dumps from different spectral files must not interleave
var debugPrintMux sync.Mutex

func init() {
	debugPeptide = flag.String("debug", "",
		"Print extracted traces of peptides whose `sequence` contains this string")
}

// debugTraceObserver returns a trace observer that dumps the raw
// isotopomer traces of matching peptides before integration, or nil
// when debug output is off
func debugTraceObserver() mid.TraceObserver {
	if *debugPeptide == `` {
		return nil
	}
	return func(id percolator.Identification, offsets []int, traces []isotope.Trace) {
		if !strings.Contains(id.Sequence, *debugPeptide) {
			return
		}
		debugPrintMux.Lock()
		defer debugPrintMux.Unlock()

		fmt.Printf("Peptide:%s charge:%d file:%s\n",
			id.Sequence, id.Charge, id.SpectrumFile)
		for k, trace := range traces {
			fmt.Printf("m%d:", offsets[k])
			for j := range trace.RT {
				fmt.Printf(" rt:%f intens:%f", trace.RT[j], trace.Intensity[j])
			}
			fmt.Printf("\n")
		}
	}
}
