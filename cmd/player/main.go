// Command player runs the signage web player: it keeps the live channel to
// the control server open, caches assigned media locally and serves the
// kiosk page that renders the slideshow.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
