// Command sonido-voz scores recordings as synthetic or human speech from
// pitch, jitter and harmonicity.
//
// Usage:
//
//	sonido-voz [flags] <command> [args]
//
// Commands:
//
//	analyze  - Analyze audio files and print the verdicts
//	serve    - Run the HTTP detection service
//	version  - Print the version
package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-voz/cmd/sonido-voz/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
