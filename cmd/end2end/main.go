// Command end2end computes CTC losses, decodes label
// probabilities, and inspects n-gram language models.
//
// Usage:
//
//	end2end decode --input batch.json            # Beam search decode
//	end2end decode --input batch.json --greedy   # Best path decode
//	end2end loss --input batch.json              # CTC loss per sample
//	end2end score --lm model.arpa hello world    # Language model scores
//	end2end compile-lm model.arpa model.bin      # Compile an ARPA model
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
